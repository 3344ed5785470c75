//go:build ignore

package main

import (
	"bytes"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Flags
var (
	flagSource = flag.String("source", "whisper.cpp", "whisper.cpp source tree to generate from")
	flagHeader = flag.String("header", "wrapper.h", "header binding generation starts from")
	flagOut    = flag.String("o", "build", "output directory")
)

func main() {
	log.SetFlags(0)
	flag.Usage = func() {
		log.Printf("Usage: go run build.go [flags]")
		log.Println()
		log.Println("Flags:")
		flag.PrintDefaults()
		log.Println()
		log.Println("This script generates fresh bindings from a whisper.cpp checkout so the")
		log.Println("bundled copy in bindgen/bindings.go.in can be refreshed. Run it after")
		log.Println("updating the whisper.cpp headers. It assumes that the current working")
		log.Println("directory is the root directory of the whispersys project.")
		log.Println()
		log.Println("The script will check for the required dependencies (cmake, c-for-go) and")
		log.Println("exit if they are not found.")
	}
	flag.Parse()

	if flag.NArg() > 0 {
		flag.Usage()
		os.Exit(2)
	}

	if !inRootDir() {
		log.Fatalf("Please run this script from the root directory of the whispersys project.")
	}

	if err := checkDependencies(); err != nil {
		log.Fatalf("Failed dependency check: %v", err)
	}
	if err := regenerateBindings(); err != nil {
		log.Fatalf("Failed to regenerate bindings: %v", err)
	}
}

// checkDependencies does a quick check to see if the required dependencies are
// installed on the system and functioning enough to print their version.
func checkDependencies() error {
	var err error
	check := func(name string, args ...string) {
		log.Printf("=== Checking for %s ===", name)
		defer log.Printf("=== Done checking for %s ===\n\n", name)
		cmd := exec.Command(name, args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		err = errors.Join(err, cmd.Run())
	}

	check("cmake", "--version")
	if _, lookErr := exec.LookPath("c-for-go"); lookErr != nil {
		err = errors.Join(err, lookErr)
	}
	return err
}

// regenerateBindings runs the bindings command with generation forced on.
// Falling back to the bundled copy is an error here since the point is to
// replace it.
func regenerateBindings() error {
	log.Println("=== Generating bindings ===")
	defer log.Printf("=== Done generating bindings ===\n\n")

	var out bytes.Buffer
	cmd := exec.Command("go", "run", ".", "-v", "bindings", "-o", *flagOut, "--source", *flagSource, "--header", *flagHeader)
	cmd.Stdout = io.MultiWriter(os.Stdout, &out)
	cmd.Stderr = os.Stderr
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "WHISPER_DONT_GENERATE_BINDINGS=") {
			cmd.Env = append(cmd.Env, kv)
		}
	}
	if err := cmd.Run(); err != nil {
		return err
	}

	if strings.HasPrefix(out.String(), "bundled") {
		return errors.New("c-for-go failed, see the warnings above")
	}

	log.Printf("Review %s and copy it over bindgen/bindings.go.in", filepath.Join(*flagOut, "bindings"))
	return nil
}

// inRootDir returns true if the current working directory is the root
// directory of the whispersys project. It looks for a file named "go.mod".
func inRootDir() bool {
	_, err := os.Stat("go.mod")
	return err == nil
}
