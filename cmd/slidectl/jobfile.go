package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"slidecast/internal/models"
)

// loadJob reads a YAML or JSON job file and validates it. Field names match
// the HTTP request body.
func loadJob(path string) (*models.RenderJob, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}

	req, err := parseJob(data)
	if err != nil {
		return nil, fmt.Errorf("parse job file %s: %w", path, err)
	}
	return req.ToJob(models.NewJobID())
}

func parseJob(data []byte) (models.RenderRequest, error) {
	var req models.RenderRequest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		if err == io.EOF {
			return req, fmt.Errorf("job file is empty")
		}
		return req, err
	}
	return req, nil
}
