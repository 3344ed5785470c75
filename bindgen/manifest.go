package bindgen

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is the package description read by c-for-go.
type Manifest struct {
	Generator  GeneratorSection  `yaml:"GENERATOR"`
	Parser     ParserSection     `yaml:"PARSER"`
	Translator TranslatorSection `yaml:"TRANSLATOR"`
}

type GeneratorSection struct {
	PackageName        string      `yaml:"PackageName"`
	PackageDescription string      `yaml:"PackageDescription"`
	PackageLicense     string      `yaml:"PackageLicense"`
	Includes           []string    `yaml:"Includes"`
	FlagGroups         []FlagGroup `yaml:"FlagGroups,omitempty"`
}

type FlagGroup struct {
	Name  string   `yaml:"name"`
	Flags []string `yaml:"flags"`
}

type ParserSection struct {
	IncludePaths []string `yaml:"IncludePaths"`
	SourcesPaths []string `yaml:"SourcesPaths"`
}

type TranslatorSection struct {
	ConstRules map[string]string `yaml:"ConstRules"`
	Rules      map[string][]Rule `yaml:"Rules"`
}

type Rule struct {
	Action    string `yaml:"action,omitempty"`
	From      string `yaml:"from,omitempty"`
	To        string `yaml:"to,omitempty"`
	Transform string `yaml:"transform,omitempty"`
	Load      string `yaml:"load,omitempty"`
}

// NewManifest describes the whisper API exposed through header, resolved
// against includeDirs.
func NewManifest(pkg, header string, includeDirs []string) Manifest {
	cflags := make([]string, 0, len(includeDirs))
	for _, dir := range includeDirs {
		cflags = append(cflags, "-I"+dir)
	}

	return Manifest{
		Generator: GeneratorSection{
			PackageName:        pkg,
			PackageDescription: "Package " + pkg + " provides Go bindings for whisper.cpp.",
			PackageLicense:     "THE AUTOGENERATED LICENSE. ALL THE RIGHTS ARE RESERVED BY ROBOTS.",
			Includes:           []string{header},
			FlagGroups:         []FlagGroup{{Name: "CFLAGS", Flags: cflags}},
		},
		Parser: ParserSection{
			IncludePaths: includeDirs,
			SourcesPaths: []string{header},
		},
		Translator: TranslatorSection{
			ConstRules: map[string]string{"defines": "expand", "enum": "cgo"},
			Rules: map[string][]Rule{
				"global": {
					{Action: "accept", From: "^whisper_"},
					{Action: "accept", From: "^WHISPER_"},
					{Action: "accept", From: "^ggml_"},
				},
				"post-global": {
					{Action: "replace", From: "_$"},
					{Load: "snakecase"},
				},
			},
		},
	}
}

// WriteFile writes m as YAML to path.
func (m Manifest) WriteFile(path string) error {
	b, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = yaml.Unmarshal(b, &m)
	return m, err
}
