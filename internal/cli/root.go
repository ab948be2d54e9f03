package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	var err error
	switch args[0] {
	case "init":
		err = runInit(args[1:])
	case "new":
		err = runNewProject(args[1:])
	case "list":
		err = runListProjects(args[1:])
	case "status":
		err = runStatus(args[1:])
	case "remove":
		err = runRemoveProject(args[1:])
	case "artifacts":
		err = runArtifacts(args[1:])
	case "save":
		err = runSaveArtifact(args[1:])
	case "get":
		err = runGetArtifact(args[1:])
	case "delete":
		err = runDeleteArtifact(args[1:])
	case "run":
		err = runPipeline(args[1:])
	case "step":
		err = runStepCommand(args[1:])
	case "wizard":
		err = runWizard(args[1:])
	case "doctor":
		err = runDoctor(args[1:])
	case "settings":
		err = runSettings(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}

	return err
}

func printRootUsage() {
	fmt.Println("video-studio: record-to-publish video workflow manager")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  video-studio init")
	fmt.Println("  video-studio new --name \"My Video\"")
	fmt.Println("  video-studio run --source recording.mp4")
	fmt.Println("  video-studio status")
	fmt.Println()
	fmt.Println("Project Commands:")
	fmt.Println("  init      create the output root + settings file, run preflight checks")
	fmt.Println("  new       create a project")
	fmt.Println("  list      list projects under the output root")
	fmt.Println("  status    workflow status for a project")
	fmt.Println("  remove    delete a project directory")
	fmt.Println()
	fmt.Println("Artifact Commands:")
	fmt.Println("  artifacts list a project's artifacts")
	fmt.Println("  save      file an external file as a named artifact")
	fmt.Println("  get       print the stored path of an artifact")
	fmt.Println("  delete    remove an artifact from manifest and disk")
	fmt.Println()
	fmt.Println("Processing Commands:")
	fmt.Println("  run       run the next eligible step, one step, or all remaining steps")
	fmt.Println("  step      enable/disable/skip/complete/error/reset steps, or show next")
	fmt.Println("  wizard    interactive step-by-step runner")
	fmt.Println()
	fmt.Println("Other:")
	fmt.Println("  doctor    check ffmpeg, the output root, and configured credentials")
	fmt.Println("  settings  show the resolved configuration")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on reporting commands for machine-readable output")
	fmt.Println("  - Commands default to the most recent project; use --project <id|name>")
}
