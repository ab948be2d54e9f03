package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"video-studio/internal/pipeline"
	"video-studio/internal/project"
	"video-studio/internal/workflow"
)

// runPipeline handles `run`: by default the next eligible step, `--all` for
// the rest of the workflow, `--step <name>` for one specific step.
func runPipeline(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	selector := fs.String("project", "", "project id or name (default: most recent)")
	root := fs.String("root", "", "output root override")
	step := fs.String("step", "", "run one specific step")
	all := fs.Bool("all", false, "run all remaining eligible steps")
	source := fs.String("source", "", "source recording (import step)")
	intro := fs.String("intro", "", "intro clip (import step)")
	outro := fs.String("outro", "", "outro clip (import step)")
	trimStart := fs.String("trim-start", "", "trim start seconds (edit step)")
	trimEnd := fs.String("trim-end", "", "trim end seconds (edit step)")
	language := fs.String("language", "", "spoken language hint (transcribe step)")
	method := fs.String("method", "", "audio cleanup method: builtin|auphonic")
	preset := fs.String("preset", "", "audio cleanup preset: light|medium|aggressive")
	style := fs.String("style", "", "title/thumbnail style")
	count := fs.String("count", "", "candidate count (titles/thumbnails)")
	tags := fs.String("tags", "", "comma-separated upload tags")
	privacy := fs.String("privacy", "", "upload privacy: public|unlisted|private")
	description := fs.String("description", "", "upload description")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	settings, err := loadSettings(*root)
	if err != nil {
		return err
	}

	// A `run --source x` with no project yet bootstraps one from the file name.
	proj, err := resolveProject(settings.OutputRoot, *selector)
	if err != nil && strings.TrimSpace(*selector) == "" && strings.TrimSpace(*source) != "" {
		proj, err = project.Create(settings.OutputRoot, projectNameFromSource(*source))
		if err == nil {
			fmt.Printf("created project %s\n", proj.ID())
		}
	}
	if err != nil {
		return err
	}

	params := map[string]string{}
	for k, v := range map[string]string{
		"source": *source, "intro": *intro, "outro": *outro,
		"trim_start": *trimStart, "trim_end": *trimEnd,
		"language": *language, "method": *method, "preset": *preset,
		"style": *style, "count": *count,
		"tags": *tags, "privacy": *privacy, "description": *description,
	} {
		if strings.TrimSpace(v) != "" {
			params[k] = strings.TrimSpace(v)
		}
	}

	progress := func(msg string) { fmt.Println(msg) }
	if *jsonOut {
		progress = nil
	}
	runner, err := pipeline.NewRunner(pipeline.Options{
		Project:  proj,
		Settings: settings,
		Progress: progress,
	})
	if err != nil {
		return err
	}
	ctx := context.Background()

	switch {
	case *all:
		results, err := runner.RunAll(ctx, params)
		if err != nil {
			return err
		}
		if *jsonOut {
			return printJSON(results)
		}
		return reportResults(proj, results)
	case strings.TrimSpace(*step) != "":
		res, err := runner.RunStep(ctx, strings.TrimSpace(*step), params)
		if err != nil {
			return err
		}
		if *jsonOut {
			return printJSON(res)
		}
		return reportResults(proj, []pipeline.StepResult{res})
	default:
		res, err := runner.RunNext(ctx, params)
		if err != nil {
			return err
		}
		if res.Step == "" {
			fmt.Println("workflow complete; nothing to run")
			return nil
		}
		if *jsonOut {
			return printJSON(res)
		}
		return reportResults(proj, []pipeline.StepResult{res})
	}
}

func reportResults(proj *project.Project, results []pipeline.StepResult) error {
	var failed []string
	for _, res := range results {
		if !res.OK() {
			failed = append(failed, fmt.Sprintf("%s: %s", res.Step, res.Err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("step failed: %s", strings.Join(failed, "; "))
	}
	if next := proj.Workflow.NextStep(); next != "" {
		fmt.Printf("next: %s\n", next)
	} else {
		fmt.Println("workflow complete")
	}
	return nil
}

// projectNameFromSource derives a project name from a file path like
// "/rec/2026-03_studio_tour.mp4".
func projectNameFromSource(source string) string {
	base := strings.TrimSpace(source)
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	if base == "" {
		return "untitled"
	}
	return base
}

// runStepCommand handles `step`: workflow state mutations and the `next`
// query, without running any processor.
func runStepCommand(args []string) error {
	fs := flag.NewFlagSet("step", flag.ContinueOnError)
	selector := fs.String("project", "", "project id or name (default: most recent)")
	root := fs.String("root", "", "output root override")
	message := fs.String("message", "", "error message (for the error action)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return errors.New("usage: step <enable|disable|skip|complete|error|reset|next> [step-name]")
	}
	action := rest[0]

	settings, err := loadSettings(*root)
	if err != nil {
		return err
	}
	proj, err := resolveProject(settings.OutputRoot, *selector)
	if err != nil {
		return err
	}

	if action == "next" {
		next := proj.Workflow.NextStep()
		if *jsonOut {
			return printJSON(map[string]any{"next_step": next, "done": proj.Workflow.Done()})
		}
		if next == "" {
			fmt.Println("workflow complete")
		} else {
			fmt.Println(next)
		}
		return nil
	}
	if action == "reset" {
		if err := proj.Workflow.Reset(); err != nil {
			return err
		}
		fmt.Println("workflow reset")
		return nil
	}

	if len(rest) < 2 {
		return fmt.Errorf("step %s requires a step name (one of: %s)", action, strings.Join(workflow.Steps, ", "))
	}
	name := rest[1]

	switch action {
	case "enable":
		err = proj.Workflow.Enable(name)
	case "disable":
		err = proj.Workflow.Disable(name)
	case "skip":
		err = proj.Workflow.MarkSkipped(name)
	case "complete":
		err = proj.Workflow.MarkCompleted(name)
	case "error":
		msg := strings.TrimSpace(*message)
		if msg == "" {
			msg = "marked failed manually"
		}
		err = proj.Workflow.MarkError(name, msg)
	default:
		return fmt.Errorf("unknown step action %q", action)
	}
	if err != nil {
		return err
	}

	status, err := proj.Workflow.Status(name)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{"step": name, "status": status})
	}
	fmt.Printf("%s: %s\n", name, stepStateLabel(status))
	return nil
}
