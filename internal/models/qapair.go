// Package models defines the core data structures used throughout qcat
// including Q&A pairs, catalogs, and catalog edit batches.
package models

import "slices"

// QAPair is a question with its expected answer and auxiliary context strings.
// Pairs fetched from the server are treated as immutable values.
type QAPair struct {
	ID             string         `json:"id" yaml:"id"`
	Question       string         `json:"question" yaml:"question"`
	ExpectedOutput string         `json:"expected_output" yaml:"expected_output"`
	Contexts       []string       `json:"contexts" yaml:"contexts"`
	MetaData       map[string]any `json:"meta_data" yaml:"meta_data"`
}

// NewQAPair is a pair that has not been assigned an id by the server yet.
type NewQAPair struct {
	Question       string   `json:"question" yaml:"question"`
	ExpectedOutput string   `json:"expected_output" yaml:"expected_output"`
	Contexts       []string `json:"contexts" yaml:"contexts"`
}

// Clone returns a deep copy of the pair.
func (p QAPair) Clone() QAPair {
	out := p
	out.Contexts = slices.Clone(p.Contexts)
	if p.MetaData != nil {
		out.MetaData = make(map[string]any, len(p.MetaData))
		for k, v := range p.MetaData {
			out.MetaData[k] = v
		}
	}
	return out
}

// Content drops the identity and metadata of the pair.
func (p QAPair) Content() NewQAPair {
	return NewQAPair{
		Question:       p.Question,
		ExpectedOutput: p.ExpectedOutput,
		Contexts:       slices.Clone(p.Contexts),
	}
}

// Clone returns a deep copy of the pair.
func (p NewQAPair) Clone() NewQAPair {
	out := p
	out.Contexts = slices.Clone(p.Contexts)
	return out
}

// WithID materializes the new pair under the given id.
func (p NewQAPair) WithID(id string) QAPair {
	return QAPair{
		ID:             id,
		Question:       p.Question,
		ExpectedOutput: p.ExpectedOutput,
		Contexts:       slices.Clone(p.Contexts),
		MetaData:       map[string]any{},
	}
}
