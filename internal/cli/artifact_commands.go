package cli

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"video-studio/internal/artifacts"
)

func runArtifacts(args []string) error {
	fs := flag.NewFlagSet("artifacts", flag.ContinueOnError)
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

	list := proj.Store.List()
	if *jsonOut {
		return printJSON(list)
	}
	if len(list) == 0 {
		fmt.Println("no artifacts yet")
		return nil
	}
	rows := make([][]string, 0, len(list))
	for _, a := range list {
		label := a.Label
		if label == "" {
			label = a.Key
		}
		rows = append(rows, []string{a.Key, label, a.Category, formatBytesIEC(a.Size), a.Modified})
	}
	fmt.Println(renderTable(
		[]string{"KEY", "LABEL", "CATEGORY", "SIZE", "MODIFIED"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
	return nil
}

func runSaveArtifact(args []string) error {
	fs := flag.NewFlagSet("save", flag.ContinueOnError)
	key := fs.String("key", "", "artifact key, e.g. original_video")
	file := fs.String("file", "", "source file to store")
	selector := fs.String("project", "", "project id or name (default: most recent)")
	root := fs.String("root", "", "output root override")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*key) == "" || strings.TrimSpace(*file) == "" {
		return errors.New("save requires --key and --file")
	}

	settings, err := loadSettings(*root)
	if err != nil {
		return err
	}
	proj, err := resolveProject(settings.OutputRoot, *selector)
	if err != nil {
		return err
	}
	art, err := proj.Store.Save(strings.TrimSpace(*key), strings.TrimSpace(*file), map[string]any{"method": "manual"})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(art)
	}
	fmt.Printf("saved %s -> %s\n", art.Key, art.Path)
	return nil
}

func runGetArtifact(args []string) error {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	key := fs.String("key", "", "artifact key")
	selector := fs.String("project", "", "project id or name (default: most recent)")
	root := fs.String("root", "", "output root override")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*key) == "" {
		return errors.New("get requires --key")
	}

	settings, err := loadSettings(*root)
	if err != nil {
		return err
	}
	proj, err := resolveProject(settings.OutputRoot, *selector)
	if err != nil {
		return err
	}
	path, err := proj.Store.Get(strings.TrimSpace(*key))
	if err != nil {
		if errors.Is(err, artifacts.ErrArtifactMissingOnDisk) {
			return fmt.Errorf("%w (delete the stale entry with: video-studio delete --key %s)", err, *key)
		}
		return err
	}
	fmt.Println(path)
	return nil
}

func runDeleteArtifact(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	key := fs.String("key", "", "artifact key")
	selector := fs.String("project", "", "project id or name (default: most recent)")
	root := fs.String("root", "", "output root override")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*key) == "" {
		return errors.New("delete requires --key")
	}

	settings, err := loadSettings(*root)
	if err != nil {
		return err
	}
	proj, err := resolveProject(settings.OutputRoot, *selector)
	if err != nil {
		return err
	}
	if err := proj.Store.Delete(strings.TrimSpace(*key)); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", *key)
	return nil
}
