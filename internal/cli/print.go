package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/dgnsrekt/shotover_agent/internal/controller"
	"github.com/dgnsrekt/shotover_agent/internal/settings"
	"github.com/pterm/pterm"
	"github.com/samber/lo"
)

var errUnsupportedOutput = errors.New("unsupported --output value: use 'json'")

func (c Cmd) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(data))
	return err
}

func printTable(rows pterm.TableData) error {
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func dash(s string) string {
	return lo.Ternary(s == "", "-", s)
}

// printImport renders every pass of an import and lists the settings the
// final pass could not apply.
func printImport(res controller.ImportResult) error {
	rows := pterm.TableData{{"Pass", "Committed", "Skipped", "Failed"}}
	for i, p := range res.Passes {
		rows = append(rows, []string{strconv.Itoa(i + 1), strconv.Itoa(p.Committed), strconv.Itoa(p.Skipped), strconv.Itoa(p.Failed)})
	}
	if err := printTable(rows); err != nil {
		return err
	}

	if len(res.Passes) > 0 {
		last := res.Passes[len(res.Passes)-1]
		failed := lo.Filter(last.Outcomes, func(o settings.Outcome, _ int) bool {
			return o.Status == settings.StatusFailed
		})
		if len(failed) > 0 {
			frows := pterm.TableData{{"Key", "Selector", "Reason"}}
			frows = append(frows, lo.Map(failed, func(o settings.Outcome, _ int) []string {
				return []string{o.Key, dash(o.Selector), dash(o.Reason)}
			})...)
			if err := printTable(frows); err != nil {
				return err
			}
		}
	}

	page := dash(res.Page)
	if res.Failed() > 0 {
		pterm.Warning.Printfln("Page %s: %d committed, %d failed", page, res.Committed(), res.Failed())
		return nil
	}
	pterm.Success.Printfln("Page %s: %d committed", page, res.Committed())
	return nil
}
