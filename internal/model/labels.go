package model

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// DefaultLabels is the class table of the bundled crop disease model.
// Index i names the i-th score of the output tensor.
var DefaultLabels = []string{
	"Corn_Blight",
	"Corn_Common_Rust",
	"Corn_Gray_Leaf_Spot",
	"Corn_Healthy",
	"Rice_Bacterial_Blight",
	"Rice_Blast",
	"Rice_Brown_Spot",
	"Sorghum_Anthracnose",
	"Sorghum_Cereal_Grain_Molds",
	"Sorghum_Head_Smut",
	"Sorghum_Loose_Smut",
	"Sorghum_Rust",
	"Wheat_Brown_Rust",
	"Wheat_Healthy",
	"Wheat_Septoria",
	"Wheat_Yellow_Rust",
}

// LoadMetadata reads the JSON sidecar that ships with a model.
func LoadMetadata(path string) (*Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read metadata: %v", ErrModelLoad, err)
	}

	var metadata Metadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("%w: failed to parse metadata %v: %v", ErrModelLoad, path, err)
	}
	if metadata.OutputQuantization != nil {
		if err := metadata.OutputQuantization.Validate(); err != nil {
			return nil, err
		}
	}
	return &metadata, nil
}

// LoadClassFile reads a text file with one class name per line. Blank lines are skipped.
func LoadClassFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open class file: %v", ErrModelLoad, err)
	}
	defer f.Close()

	classes := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			classes = append(classes, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read class file: %v", ErrModelLoad, err)
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("%w: class file %v is empty", ErrModelLoad, path)
	}
	return classes, nil
}

// ResolveLabels picks the label table: an explicit class file wins, then the metadata classes,
// then DefaultLabels.
func ResolveLabels(classFile string, metadata *Metadata) ([]string, error) {
	if classFile != "" {
		return LoadClassFile(classFile)
	}
	if metadata != nil && len(metadata.Classes) > 0 {
		return metadata.Classes, nil
	}
	return DefaultLabels, nil
}
