package notifications

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

// ChannelTemplate is the subject/body pair for one channel.
type ChannelTemplate struct {
	Subject string `yaml:"subject" json:"subject"`
	Body    string `yaml:"body" json:"body"`
}

// Template defines how a notification renders. Channels overrides the
// default subject/body for specific channels, e.g. a short SMS body.
type Template struct {
	Ref      string                      `yaml:"ref" json:"ref"`
	Type     Type                        `yaml:"type" json:"type"`
	Required []string                    `yaml:"required" json:"required,omitempty"`
	Subject  string                      `yaml:"subject" json:"subject"`
	Body     string                      `yaml:"body" json:"body"`
	Channels map[Channel]ChannelTemplate `yaml:"channels" json:"channels,omitempty"`
}

// Rendered is a template rendered for one channel.
type Rendered struct {
	Subject string
	Body    string
}

type compiledTemplate struct {
	def      Template
	subjects map[Channel]*template.Template
	bodies   map[Channel]*template.Template
}

// TemplateStore holds one template per reference. Safe for concurrent use.
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[string]*compiledTemplate
	byType    map[Type]string
}

// NewTemplateStore compiles the given templates.
func NewTemplateStore(templates ...Template) (*TemplateStore, error) {
	s := &TemplateStore{
		templates: make(map[string]*compiledTemplate),
		byType:    make(map[Type]string),
	}
	for _, t := range templates {
		if err := s.Add(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// MustTemplateStore is NewTemplateStore that panics on error.
func MustTemplateStore(templates ...Template) *TemplateStore {
	s, err := NewTemplateStore(templates...)
	if err != nil {
		panic(err)
	}
	return s
}

// Add compiles t and stores it, replacing any template with the same ref.
// The first template added for a type becomes that type's default.
func (s *TemplateStore) Add(t Template) error {
	if t.Ref == "" {
		return &TemplateError{Err: errors.New("ref is required")}
	}
	if t.Type != "" && !t.Type.Valid() {
		return &TemplateError{Ref: t.Ref, Err: fmt.Errorf("unknown type %q", t.Type)}
	}

	ct := &compiledTemplate{
		def:      t,
		subjects: make(map[Channel]*template.Template),
		bodies:   make(map[Channel]*template.Template),
	}

	compile := func(ch Channel, subject, body string) error {
		var err error
		if ct.subjects[ch], err = parseText(t.Ref+"/"+string(ch)+"/subject", subject); err != nil {
			return &TemplateError{Ref: t.Ref, Channel: ch, Err: err}
		}
		if ct.bodies[ch], err = parseText(t.Ref+"/"+string(ch)+"/body", body); err != nil {
			return &TemplateError{Ref: t.Ref, Channel: ch, Err: err}
		}
		return nil
	}

	if err := compile("", t.Subject, t.Body); err != nil {
		return err
	}
	for ch, ov := range t.Channels {
		if !ch.Valid() {
			return &TemplateError{Ref: t.Ref, Err: fmt.Errorf("unknown channel %q", ch)}
		}
		subject, body := ov.Subject, ov.Body
		if subject == "" {
			subject = t.Subject
		}
		if body == "" {
			body = t.Body
		}
		if err := compile(ch, subject, body); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.Ref] = ct
	if _, ok := s.byType[t.Type]; !ok && t.Type != "" {
		s.byType[t.Type] = t.Ref
	}
	return nil
}

func parseText(name, text string) (*template.Template, error) {
	return template.New(name).Option("missingkey=error").Parse(text)
}

// Has reports whether ref is known.
func (s *TemplateStore) Has(ref string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.templates[ref]
	return ok
}

// RefForType returns the default template ref for t.
func (s *TemplateStore) RefForType(t Type) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.byType[t]
	return ref, ok
}

// Refs lists the known template refs in sorted order.
func (s *TemplateStore) Refs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := make([]string, 0, len(s.templates))
	for ref := range s.templates {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

var missingKeyRe = regexp.MustCompile(`map has no entry for key "([^"]+)"`)

// Render renders ref for channel. Missing required variables, or any
// variable the template references but data lacks, yield a TemplateError.
func (s *TemplateStore) Render(ref string, data map[string]any, channel Channel) (Rendered, error) {
	s.mu.RLock()
	ct, ok := s.templates[ref]
	s.mu.RUnlock()
	if !ok {
		return Rendered{}, &TemplateError{Ref: ref, Channel: channel, Err: ErrTemplateNotFound}
	}

	var missing []string
	for _, key := range ct.def.Required {
		if v, ok := data[key]; !ok || v == nil {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Rendered{}, &TemplateError{Ref: ref, Channel: channel, Missing: missing}
	}

	key := channel
	if _, ok := ct.bodies[key]; !ok {
		key = ""
	}

	if data == nil {
		data = map[string]any{}
	}
	subject, err := execute(ct.subjects[key], data)
	if err != nil {
		return Rendered{}, templateExecError(ref, channel, err)
	}
	body, err := execute(ct.bodies[key], data)
	if err != nil {
		return Rendered{}, templateExecError(ref, channel, err)
	}
	return Rendered{Subject: subject, Body: body}, nil
}

func execute(t *template.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func templateExecError(ref string, channel Channel, err error) error {
	te := &TemplateError{Ref: ref, Channel: channel, Err: err}
	if m := missingKeyRe.FindStringSubmatch(err.Error()); m != nil {
		te.Missing = []string{m[1]}
		te.Err = nil
	}
	return te
}

type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// LoadTemplates reads templates from YAML:
//
//	templates:
//	  - ref: task.assigned
//	    type: task
//	    required: [task, project]
//	    subject: "New task: {{.task}}"
//	    body: "You were assigned {{.task}} in {{.project}}."
//	    channels:
//	      sms:
//	        body: "Task {{.task}} assigned"
func LoadTemplates(r io.Reader) (*TemplateStore, error) {
	var f templateFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	return NewTemplateStore(f.Templates...)
}

// LoadTemplatesFile is LoadTemplates for a file path.
func LoadTemplatesFile(path string) (*TemplateStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open templates: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadTemplates(f)
}
