package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"video-studio/internal/config"
	"video-studio/internal/media"
	"video-studio/internal/project"
	"video-studio/internal/workflow"
)

// loadSettings resolves configuration, with an optional output root
// override from the command line.
func loadSettings(rootOverride string) (config.Settings, error) {
	settings, err := config.Load(config.LoadOptions{})
	if err != nil {
		return config.Settings{}, err
	}
	if v := strings.TrimSpace(rootOverride); v != "" {
		settings.OutputRoot = v
	}
	return settings, nil
}

// resolveProject opens the project named by selector, or the most recent
// one when the selector is empty.
func resolveProject(root, selector string) (*project.Project, error) {
	var dir string
	var err error
	if strings.TrimSpace(selector) == "" {
		dir, err = project.Latest(root)
	} else {
		dir, err = project.Resolve(root, selector)
	}
	if err != nil {
		return nil, err
	}
	return project.Open(dir)
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	root := fs.String("root", "", "output root override")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	settings, err := loadSettings(*root)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(settings.OutputRoot, 0o755); err != nil {
		return fmt.Errorf("create output root: %w", err)
	}

	createdSettings := false
	if _, err := os.Stat("settings.toml"); os.IsNotExist(err) {
		if err := os.WriteFile("settings.toml", []byte(defaultSettingsTOML), 0o644); err != nil {
			return fmt.Errorf("write settings.toml: %w", err)
		}
		createdSettings = true
	}

	report := doctorReport(settings)
	if *jsonOut {
		return printJSON(map[string]any{
			"output_root":      settings.OutputRoot,
			"created_settings": createdSettings,
			"checks":           report,
		})
	}

	fmt.Println("workspace initialized")
	fmt.Printf("output_root: %s\n", settings.OutputRoot)
	fmt.Printf("created_settings: %t\n", createdSettings)
	fmt.Println("checks:")
	ok := true
	for _, c := range report {
		status := "ok"
		if !c.OK {
			status, ok = "fail", false
		}
		fmt.Printf("  %s: %s (%s)\n", c.Name, status, c.Message)
	}
	if !ok {
		fmt.Println("some checks failed; processing steps that need them will record errors")
	}
	fmt.Println("next: video-studio new --name \"My Video\"")
	return nil
}

const defaultSettingsTOML = `[paths]
output_root = "output/projects"

[defaults]
gemini_model = "gemini-2.5-flash"
upload_privacy = "unlisted"
upload_category = "22"
audio_preset = "medium"
thumbnail_style = "modern"
`

func runNewProject(args []string) error {
	fs := flag.NewFlagSet("new", flag.ContinueOnError)
	name := fs.String("name", "", "project name")
	root := fs.String("root", "", "output root override")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	settings, err := loadSettings(*root)
	if err != nil {
		return err
	}
	projectName := strings.TrimSpace(*name)
	if projectName == "" {
		projectName, err = promptRequired("project name")
		if err != nil {
			return err
		}
	}

	proj, err := project.Create(settings.OutputRoot, projectName)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]string{
			"project_id": proj.ID(),
			"name":       proj.Name(),
			"dir":        proj.Dir(),
		})
	}
	fmt.Printf("created project %s\n", proj.ID())
	fmt.Printf("dir: %s\n", proj.Dir())
	fmt.Println("next: video-studio run --source <recording>")
	return nil
}

func runListProjects(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	root := fs.String("root", "", "output root override")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	settings, err := loadSettings(*root)
	if err != nil {
		return err
	}
	infos, err := project.List(settings.OutputRoot)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(infos)
	}
	if len(infos) == 0 {
		fmt.Println("no projects yet; create one with: video-studio new --name \"My Video\"")
		return nil
	}

	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		progress := fmt.Sprintf("%d/%d", info.Progress.Completed, info.Progress.Enabled)
		if info.Progress.Done {
			progress += " done"
		}
		rows = append(rows, []string{
			info.ProjectID,
			info.Name,
			fmt.Sprintf("%d", info.Artifacts),
			progress,
			info.Updated,
		})
	}
	fmt.Println(renderTable(
		[]string{"PROJECT", "NAME", "ARTIFACTS", "PROGRESS", "UPDATED"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	selector := fs.String("project", "", "project id or name (default: most recent)")
	root := fs.String("root", "", "output root override")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	settings, err := loadSettings(*root)
	if err != nil {
		return err
	}
	proj, err := resolveProject(settings.OutputRoot, *selector)
	if err != nil {
		return err
	}

	steps := proj.Workflow.All()
	if *jsonOut {
		return printJSON(map[string]any{
			"project_id": proj.ID(),
			"name":       proj.Name(),
			"steps":      steps,
			"next_step":  proj.Workflow.NextStep(),
			"summary":    proj.Workflow.Summarize(),
		})
	}

	fmt.Printf("project: %s (%s)\n", proj.Name(), proj.ID())
	rows := make([][]string, 0, len(steps))
	for _, s := range steps {
		rows = append(rows, []string{s.Name, workflow.StepLabels[s.Name], stepStateLabel(s.Status), s.Status.Error})
	}
	fmt.Println(renderTable(
		[]string{"STEP", "", "STATE", "ERROR"},
		rows,
		nil,
	))
	summary := proj.Workflow.Summarize()
	if summary.Done {
		fmt.Println("workflow complete")
	} else if next := proj.Workflow.NextStep(); next != "" {
		fmt.Printf("next: %s\n", next)
	}
	return nil
}

func stepStateLabel(s workflow.StepStatus) string {
	switch {
	case s.Error != "":
		return "error"
	case s.Completed:
		return "completed"
	case s.Skipped:
		return "skipped"
	case !s.Enabled:
		return "disabled"
	default:
		return "pending"
	}
}

func runRemoveProject(args []string) error {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	selector := fs.String("project", "", "project id or name")
	root := fs.String("root", "", "output root override")
	yes := fs.Bool("yes", false, "skip confirmation")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*selector) == "" {
		return errors.New("remove requires --project")
	}

	settings, err := loadSettings(*root)
	if err != nil {
		return err
	}
	dir, err := project.Resolve(settings.OutputRoot, *selector)
	if err != nil {
		return err
	}
	projectID := filepath.Base(dir)
	if !*yes {
		ok, err := promptConfirm(fmt.Sprintf("delete project %s and all its artifacts? [y/N] ", projectID))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("aborted")
			return nil
		}
	}
	if err := project.Remove(settings.OutputRoot, projectID); err != nil {
		return err
	}
	fmt.Printf("removed %s\n", projectID)
	return nil
}

type doctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func doctorReport(settings config.Settings) []doctorCheck {
	var checks []doctorCheck

	deps := media.DependencyStatus()
	binCheck := func(name string, found bool, path string) doctorCheck {
		if !found {
			return doctorCheck{Name: name, OK: false, Message: "not found on PATH"}
		}
		return doctorCheck{Name: name, OK: true, Message: path}
	}
	checks = append(checks,
		binCheck("ffmpeg", deps.FFmpegFound, deps.FFmpegPath),
		binCheck("ffprobe", deps.FFprobeFound, deps.FFprobePath),
	)

	rootOK, rootMsg := true, settings.OutputRoot
	if err := os.MkdirAll(settings.OutputRoot, 0o755); err != nil {
		rootOK, rootMsg = false, err.Error()
	}
	checks = append(checks, doctorCheck{Name: "output_root", OK: rootOK, Message: rootMsg})

	keyCheck := func(name, value, hint string) doctorCheck {
		if value == "" {
			return doctorCheck{Name: name, OK: false, Message: "not set (" + hint + ")"}
		}
		return doctorCheck{Name: name, OK: true, Message: "configured"}
	}
	checks = append(checks,
		keyCheck("gemini_api_key", settings.GeminiAPIKey, "transcription, titles and thumbnails need GOOGLE_GEMINI_API_KEY"),
		keyCheck("youtube_credentials", settings.YouTubeRefreshToken, "upload needs YOUTUBE_CLIENT_ID/SECRET/REFRESH_TOKEN"),
	)
	return checks
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	root := fs.String("root", "", "output root override")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	settings, err := loadSettings(*root)
	if err != nil {
		return err
	}
	report := doctorReport(settings)
	if *jsonOut {
		return printJSON(report)
	}
	allOK := true
	for _, c := range report {
		status := "ok"
		if !c.OK {
			status, allOK = "fail", false
		}
		fmt.Printf("%s: %s (%s)\n", c.Name, status, c.Message)
	}
	if !allOK {
		return errors.New("doctor checks failed")
	}
	fmt.Println("doctor: all checks passed")
	return nil
}

func runSettings(args []string) error {
	fs := flag.NewFlagSet("settings", flag.ContinueOnError)
	root := fs.String("root", "", "output root override")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	settings, err := loadSettings(*root)
	if err != nil {
		return err
	}
	view := map[string]string{
		"output_root":     settings.OutputRoot,
		"gemini_model":    settings.GeminiModel,
		"upload_privacy":  settings.UploadPrivacy,
		"upload_category": settings.UploadCategory,
		"audio_preset":    settings.AudioPreset,
		"thumbnail_style": settings.ThumbnailStyle,
		"gemini_api_key":  redactSecret(settings.GeminiAPIKey),
		"auphonic_key":    redactSecret(settings.AuphonicAPIKey),
		"youtube_refresh": redactSecret(settings.YouTubeRefreshToken),
	}
	if *jsonOut {
		return printJSON(view)
	}
	for _, key := range []string{
		"output_root", "gemini_model", "upload_privacy", "upload_category",
		"audio_preset", "thumbnail_style", "gemini_api_key", "auphonic_key", "youtube_refresh",
	} {
		fmt.Printf("%s: %s\n", key, view[key])
	}
	return nil
}
