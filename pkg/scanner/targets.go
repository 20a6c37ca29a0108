package scanner

import (
	"os"

	"gopkg.in/yaml.v3"
)

// defaultTargets is used when no scan-targets file is configured or the
// configured file doesn't exist yet.
var defaultTargets = []string{"juice-shop:latest"}

type targetsFile struct {
	Targets []string `yaml:"targets"`
}

// loadTargets reads the image references to scan from path. A missing
// file or an empty list falls back to defaultTargets rather than failing
// startup, or a reload, over a file a user hasn't written yet.
func loadTargets(path string) ([]string, error) {
	if path == "" {
		return defaultTargets, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultTargets, nil
		}
		return nil, err
	}

	var tf targetsFile
	if err := yaml.Unmarshal(raw, &tf); err != nil {
		return nil, err
	}
	if len(tf.Targets) == 0 {
		return defaultTargets, nil
	}
	return tf.Targets, nil
}
