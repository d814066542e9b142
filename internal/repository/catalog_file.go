package repository

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// CatalogFile is the JSON document used to seed exams and questions.
type CatalogFile struct {
	Exams     []model.Exam     `json:"exams"`
	Questions []model.Question `json:"questions"`
}

// LoadCatalogFile reads and validates a catalog document.
func LoadCatalogFile(path string) (*CatalogFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var c CatalogFile
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that every section reference resolves to a question in the file.
func (c *CatalogFile) Validate() error {
	known := make(map[model.QuestionID]bool, len(c.Questions))
	for _, q := range c.Questions {
		known[q.ID] = true
	}
	for _, e := range c.Exams {
		for _, qid := range e.QuestionIDs() {
			if !known[qid] {
				return fmt.Errorf("exam %s references unknown question %s", e.ID, qid)
			}
		}
	}
	return nil
}
