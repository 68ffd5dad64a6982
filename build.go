//go:build ignore

// build.go - launcher and license server build script
// Usage: go run build.go [-target=TARGET] [-v]
// Targets: all, launcher, license-server, licensectl, test, release, clean

package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const module = "github.com/ernyzasxash/clientt"

// executables maps cmd/ directories to output names
var executables = []string{"launcher", "license-server", "licensectl"}

// releasePlatforms are cross compiled by the release target
var releasePlatforms = [][2]string{
	{"linux", "amd64"},
	{"linux", "arm64"},
	{"windows", "amd64"},
	{"darwin", "arm64"},
}

var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	distDir     = "dist"
	verboseFlag bool
)

func main() {
	target := flag.String("target", "all", "Build target")
	flag.BoolVar(&verboseFlag, "v", false, "Verbose output")
	flag.Parse()

	if runtime.GOOS == "windows" && os.Getenv("TERM") == "" {
		colorReset, colorRed, colorGreen, colorBlue, colorCyan = "", "", "", "", ""
	}

	printHeader()
	start := time.Now()

	var err error
	switch *target {
	case "all":
		err = buildAll(runtime.GOOS, runtime.GOARCH, distDir)
	case "launcher", "license-server", "licensectl":
		err = buildExecutable(*target, runtime.GOOS, runtime.GOARCH, distDir)
	case "test":
		err = run("go", "test", "-race", "./...")
	case "release":
		err = buildRelease()
	case "clean":
		printInfo("Removing " + distDir)
		err = os.RemoveAll(distDir)
	default:
		showHelp()
		os.Exit(1)
	}

	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}
	printSuccess(fmt.Sprintf("Build completed in %s", time.Since(start).Round(time.Millisecond)))
}

func buildAll(goos, goarch, outDir string) error {
	for _, name := range executables {
		if err := buildExecutable(name, goos, goarch, outDir); err != nil {
			return err
		}
	}
	return copyConfig(outDir)
}

func buildRelease() error {
	for _, p := range releasePlatforms {
		outDir := filepath.Join(distDir, p[0]+"-"+p[1])
		printInfo(fmt.Sprintf("Release build for %s/%s", p[0], p[1]))
		if err := buildAll(p[0], p[1], outDir); err != nil {
			return err
		}
	}
	return nil
}

func buildExecutable(name, goos, goarch, outDir string) error {
	printInfo(fmt.Sprintf("Building %s (%s/%s)...", name, goos, goarch))

	out := filepath.Join(outDir, name)
	if goos == "windows" {
		out += ".exe"
	}

	ldflags := strings.Join([]string{
		"-s", "-w",
		fmt.Sprintf("-X %s/pkg/contracts.BuildTime=%s", module, time.Now().UTC().Format(time.RFC3339)),
		fmt.Sprintf("-X %s/pkg/contracts.GitCommit=%s", module, gitCommit()),
	}, " ")

	args := []string{"build", "-trimpath", "-ldflags", ldflags, "-o", out}
	if verboseFlag {
		args = append(args, "-v")
	}
	args = append(args, "./cmd/"+name)

	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(), "GOOS="+goos, "GOARCH="+goarch, "CGO_ENABLED=0")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("build %s: %w", name, err)
	}
	return nil
}

// copyConfig places the example configuration next to the binaries
func copyConfig(outDir string) error {
	src := filepath.Join("configs", "config.example.yaml")
	data, err := os.ReadFile(src)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, "config.example.yaml"), data, 0o644)
}

func gitCommit() string {
	out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

func run(name string, args ...string) error {
	if verboseFlag {
		args = append(args, "-v")
	}
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func printHeader() {
	fmt.Println(colorCyan + "===========================================" + colorReset)
	fmt.Println(colorCyan + "     Launcher & License Server Build       " + colorReset)
	fmt.Println(colorCyan + "===========================================" + colorReset)
	fmt.Println()
}

func printInfo(msg string) {
	fmt.Printf("%s[INFO]%s %s\n", colorBlue, colorReset, msg)
}

func printSuccess(msg string) {
	fmt.Printf("%s[SUCCESS]%s %s\n", colorGreen, colorReset, msg)
}

func printError(msg string) {
	fmt.Printf("%s[ERROR]%s %s\n", colorRed, colorReset, msg)
}

func showHelp() {
	fmt.Println("Usage: go run build.go [-target=TARGET] [-v]")
	fmt.Println()
	fmt.Println("Targets:")
	fmt.Println("  all             build launcher, license-server and licensectl (default)")
	fmt.Println("  launcher        build the launcher")
	fmt.Println("  license-server  build the license server")
	fmt.Println("  licensectl      build the admin CLI")
	fmt.Println("  test            run all tests with the race detector")
	fmt.Println("  release         cross compile for " + platformList())
	fmt.Println("  clean           remove " + distDir)
}

func platformList() string {
	names := make([]string, len(releasePlatforms))
	for i, p := range releasePlatforms {
		names[i] = p[0] + "/" + p[1]
	}
	return strings.Join(names, ", ")
}
