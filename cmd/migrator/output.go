package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/TheMichaelB/migrator/internal/report"
	"github.com/TheMichaelB/migrator/internal/services/migration"
)

var (
	green  = color.New(color.FgGreen, color.Bold).SprintfFunc()
	red    = color.New(color.FgRed, color.Bold).SprintfFunc()
	yellow = color.New(color.FgYellow).SprintfFunc()
	cyan   = color.New(color.FgCyan).SprintfFunc()
)

func printSuccess(format string, args ...interface{}) {
	fmt.Fprintln(os.Stdout, green(format, args...))
}

func printError(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, red("Error: "+format, args...))
}

func printWarning(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, yellow(format, args...))
}

func printInfo(format string, args ...interface{}) {
	fmt.Fprintln(os.Stdout, cyan(format, args...))
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printYAML(v interface{}) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

// structured prints v in the selected machine readable format. It returns
// false for text output.
func structured(v interface{}) (bool, error) {
	switch outputFormat {
	case "json":
		return true, printJSON(v)
	case "yaml":
		return true, printYAML(v)
	default:
		return false, nil
	}
}

// runOutput is the machine readable form of a run.
type runOutput struct {
	RunID   string         `json:"run_id" yaml:"run_id"`
	Archive string         `json:"archive" yaml:"archive"`
	Report  report.Summary `json:"report" yaml:"report"`
}

// printResult renders a finished run and returns an error when it failed.
func printResult(res *migration.Result, target string) error {
	summary := res.Report.Summary()

	done, err := structured(runOutput{RunID: res.RunID, Archive: target, Report: summary})
	if err != nil {
		return err
	}
	if !done {
		printSummary(summary, target)
	}

	if !summary.Success {
		return fmt.Errorf("%s failed with %d error(s)", summary.Operation, len(summary.Errors))
	}
	return nil
}

func printSummary(s report.Summary, target string) {
	for _, msg := range s.Infos {
		printInfo("%s", msg)
	}
	for _, msg := range s.Warnings {
		printWarning("Warning: %s", msg)
	}
	for _, msg := range s.Errors {
		printError("%s", msg)
	}

	if s.Success {
		printSuccess("Successfully completed %s of [%s] in %s", s.Operation, target, s.Duration.Round(time.Millisecond))
		if info, err := os.Stat(target); err == nil && !info.IsDir() {
			fmt.Printf("   Size: %s\n", humanize.Bytes(uint64(info.Size())))
		}
	} else {
		printError("%s of [%s] failed", s.Operation, target)
	}

	if len(s.Warnings) > 0 {
		fmt.Printf("   Warnings: %d\n", len(s.Warnings))
	}
}
