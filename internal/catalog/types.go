package catalog

// ScriptureRef is a secondary scripture reference with an external link.
type ScriptureRef struct {
	Ref  string `yaml:"ref" json:"ref"`
	Link string `yaml:"link" json:"link"`
}

// Entry is one question-and-answer study entry.
type Entry struct {
	ID                  int            `yaml:"id" json:"id"`
	Question            string         `yaml:"question" json:"question"`
	Answer              string         `yaml:"answer" json:"answer"`
	MainScripture       string         `yaml:"main_scripture" json:"mainScripture"`
	OtherScriptures     []ScriptureRef `yaml:"other_scriptures" json:"otherScriptures"`
	Explanation         string         `yaml:"explanation" json:"explanation"`
	ExpandedExplanation []string       `yaml:"expanded_explanation,omitempty" json:"expandedExplanation,omitempty"`
}

// HasExpandedExplanation reports whether the entry carries any expanded paragraphs.
func (e Entry) HasExpandedExplanation() bool {
	return len(e.ExpandedExplanation) > 0
}

// clone returns a copy that shares no slices with e.
func (e Entry) clone() Entry {
	if e.OtherScriptures != nil {
		e.OtherScriptures = append([]ScriptureRef(nil), e.OtherScriptures...)
	}
	if e.ExpandedExplanation != nil {
		e.ExpandedExplanation = append([]string(nil), e.ExpandedExplanation...)
	}
	return e
}

// Resource is an external resource link shown on the resources page.
type Resource struct {
	Title    string `yaml:"title" json:"title"`
	URL      string `yaml:"url" json:"url"`
	Category string `yaml:"category" json:"category"`
}

// ResourceGroup is one category section of the resources page.
type ResourceGroup struct {
	Category  string     `json:"category"`
	Resources []Resource `json:"resources"`
}

// document is the on-disk shape of a catalog.
type document struct {
	Entries   []Entry    `yaml:"entries"`
	Resources []Resource `yaml:"resources"`
}
