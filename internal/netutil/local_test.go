package netutil

import "testing"

func TestIsLocalURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"file:///home/op/shotover.html", true},
		{"http://localhost:8080/#/lens", true},
		{"http://LOCALHOST/", true},
		{"http://127.0.0.1/", true},
		{"http://127.8.9.10/", true},
		{"http://10.1.2.3/", true},
		{"http://172.16.0.1/", true},
		{"http://172.31.255.254/", true},
		{"http://172.32.0.1/", false},
		{"http://172.15.0.1/", false},
		{"http://192.168.1.20/#/network", true},
		{"http://192.169.1.20/", false},
		{"https://example.com/", false},
		{"http://8.8.8.8/", false},
		{"http://[::1]/", false},
		{"not a url", false},
		{"", false},
		{"http://%zz/", false},
	}
	for _, tt := range tests {
		if got := IsLocalURL(tt.url); got != tt.want {
			t.Errorf("IsLocalURL(%q) = %v; want %v", tt.url, got, tt.want)
		}
	}
}
