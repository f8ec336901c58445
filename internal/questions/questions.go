// Package questions parses, validates and canonicalizes multiple-choice question sets.
package questions

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"
	"gopkg.in/yaml.v3"

	"github.com/pavelanni/examvault/internal/model"
)

// OptionCount is the number of options every question must have.
const OptionCount = 4

// Question is one multiple-choice question. CorrectAnswer is 1-based.
type Question struct {
	ID            string   `json:"id,omitempty" yaml:"id,omitempty"`
	Text          string   `json:"question" yaml:"question"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer int      `json:"correctAnswer" yaml:"correctAnswer"`
}

// Set is the plaintext payload sealed into an exam envelope.
type Set struct {
	Questions []Question `json:"questions" yaml:"questions"`
}

// Parse decodes a question set from JSON or YAML and validates it.
// A top-level list is accepted as the list of questions.
func Parse(data []byte) (*Set, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, model.NewValidationError(-1, "questions", "question set is empty")
	}

	var set Set
	var err error
	switch trimmed[0] {
	case '{':
		err = json.Unmarshal(trimmed, &set)
	case '[':
		err = json.Unmarshal(trimmed, &set.Questions)
	default:
		err = parseYAML(trimmed, &set)
	}
	if err != nil {
		return nil, model.NewValidationError(-1, "questions", fmt.Sprintf("cannot decode question set: %v", err))
	}

	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

func parseYAML(data []byte, set *Set) error {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		return node.Decode(&set.Questions)
	}
	return node.Decode(set)
}

// Validate checks every question and returns a *model.ValidationError listing all problems.
func (s *Set) Validate() error {
	verr := &model.ValidationError{}
	if len(s.Questions) == 0 {
		verr.Add(-1, "questions", "at least one question is required")
	}
	for i, q := range s.Questions {
		if strings.TrimSpace(q.Text) == "" {
			verr.Add(i, "question", "text is required")
		}
		if len(q.Options) != OptionCount {
			verr.Add(i, "options", fmt.Sprintf("must have exactly %d options, got %d", OptionCount, len(q.Options)))
		} else {
			for j, opt := range q.Options {
				if strings.TrimSpace(opt) == "" {
					verr.Add(i, "options", fmt.Sprintf("option %d is empty", j+1))
				}
			}
		}
		if q.CorrectAnswer < 1 || q.CorrectAnswer > OptionCount {
			verr.Add(i, "correctAnswer", fmt.Sprintf("must be between 1 and %d, got %d", OptionCount, q.CorrectAnswer))
		}
	}
	return verr.OrNil()
}

// Canonical returns the RFC 8785 canonical JSON encoding of the set.
func (s *Set) Canonical() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal question set: %w", err)
	}
	out, err := jcs.Transform(data)
	if err != nil {
		return nil, fmt.Errorf("canonicalize question set: %w", err)
	}
	return out, nil
}

// Checksum returns the hex SHA-256 of the canonical form of a JSON document.
func Checksum(data []byte) (string, error) {
	canonical, err := jcs.Transform(data)
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Sanitize returns the questions without their answer key.
func (s *Set) Sanitize() []model.SanitizedQuestion {
	out := make([]model.SanitizedQuestion, len(s.Questions))
	for i, q := range s.Questions {
		out[i] = model.SanitizedQuestion{
			Index:   i,
			ID:      q.ID,
			Text:    q.Text,
			Options: append([]string(nil), q.Options...),
		}
	}
	return out
}
