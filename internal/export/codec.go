package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kilupskalvis/qcat/internal/models"
	"gopkg.in/yaml.v3"
)

func decodeJSON(r io.Reader) ([]models.QAPair, error) {
	var pairs []models.QAPair
	if err := json.NewDecoder(r).Decode(&pairs); err != nil {
		return nil, err
	}
	return pairs, nil
}

func encodeJSON(w io.Writer, pairs []models.QAPair) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(pairs)
}

func decodeYAML(r io.Reader) ([]models.QAPair, error) {
	var pairs []models.QAPair
	if err := yaml.NewDecoder(r).Decode(&pairs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	return pairs, nil
}

func encodeYAML(w io.Writer, pairs []models.QAPair) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(pairs); err != nil {
		return err
	}
	return enc.Close()
}

// CSV columns. Any other column of an uploaded file becomes a meta_data
// entry; a meta_data column holding a JSON object is merged in as well.
const (
	colID       = "id"
	colQuestion = "question"
	colExpected = "expected_output"
	colContexts = "contexts"
	colMetaData = "meta_data"
)

var requiredColumns = []string{colQuestion, colContexts, colExpected}

func decodeCSV(r io.Reader) ([]models.QAPair, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns %v (need %v)", missing, requiredColumns)
	}

	var pairs []models.QAPair
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		pairs = append(pairs, pairFromRecord(header, index, record))
	}
	return pairs, nil
}

func pairFromRecord(header []string, index map[string]int, record []string) models.QAPair {
	p := models.QAPair{
		Question:       record[index[colQuestion]],
		ExpectedOutput: record[index[colExpected]],
		Contexts:       parseContexts(record[index[colContexts]]),
		MetaData:       map[string]any{},
	}
	if i, ok := index[colID]; ok {
		p.ID = record[i]
	}

	for i, name := range header {
		name = strings.TrimSpace(name)
		switch name {
		case colID, colQuestion, colExpected, colContexts:
			continue
		case colMetaData:
			var meta map[string]any
			if err := json.Unmarshal([]byte(record[i]), &meta); err == nil {
				for k, v := range meta {
					p.MetaData[k] = v
				}
				continue
			}
		}
		p.MetaData[name] = record[i]
	}
	return p
}

// parseContexts reads a JSON array of strings. Anything else yields no
// contexts.
func parseContexts(s string) []string {
	var contexts []string
	if err := json.Unmarshal([]byte(s), &contexts); err != nil || contexts == nil {
		return []string{}
	}
	return contexts
}

func encodeCSV(w io.Writer, pairs []models.QAPair) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{colID, colQuestion, colExpected, colContexts, colMetaData}); err != nil {
		return err
	}

	for _, p := range pairs {
		contexts := p.Contexts
		if contexts == nil {
			contexts = []string{}
		}
		ctxJSON, err := json.Marshal(contexts)
		if err != nil {
			return err
		}
		meta, err := marshalMeta(p.MetaData)
		if err != nil {
			return err
		}
		if err := cw.Write([]string{p.ID, p.Question, p.ExpectedOutput, string(ctxJSON), meta}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func marshalMeta(meta map[string]any) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
