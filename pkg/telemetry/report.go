package telemetry

import (
	"Dumbbell/api"
	"bufio"
	"fmt"
	"io"
	"os"
)

// ReadReport parses every line of r, skipping lines without a sample.
func ReadReport(r io.Reader, p Parser) ([]api.Sample, error) {
	var samples []api.Sample
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if s, ok := p.Parse(sc.Text()); ok {
			samples = append(samples, s)
		}
	}
	if err := sc.Err(); err != nil {
		return samples, err
	}
	return samples, nil
}

func ReadFile(path string, p Parser) ([]api.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	samples, err := ReadReport(f, p)
	if err != nil {
		return samples, fmt.Errorf("error reading report %s: %w", path, err)
	}
	return samples, nil
}
