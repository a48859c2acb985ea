package registry

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// Namespace is the XML namespace written on the document root.
const Namespace = "https://admin-shell.io/aas/3/0"

// Collection and property identifiers used inside the document.
const (
	servicesID = "Services"
	statesID   = "OperationalStates"

	propInput          = "Input"
	propOutput         = "Output"
	propDriverFunction = "DriverFunction"
	propEffector       = "Effector"

	defaultSubmodelID = "Runchain"

	valueTypeString  = "xs:string"
	valueTypeBoolean = "xs:boolean"
)

// environment is the root element of a registry document.
//
// Only submodels, element collections and properties are modelled.
// Other element kinds are dropped when the document is rewritten.
type environment struct {
	XMLName   xml.Name   `xml:"environment"`
	Xmlns     string     `xml:"xmlns,attr,omitempty"`
	Submodels []submodel `xml:"submodels>submodel"`
}

type submodel struct {
	IDShort  string      `xml:"idShort,omitempty"`
	ID       string      `xml:"id,omitempty"`
	Elements elementList `xml:"submodelElements"`
}

type elementList struct {
	Collections []collection `xml:"submodelElementCollection"`
	Properties  []property   `xml:"property"`
}

type collection struct {
	IDShort string      `xml:"idShort"`
	Value   elementList `xml:"value"`
}

type property struct {
	IDShort   string `xml:"idShort"`
	ValueType string `xml:"valueType,omitempty"`
	Value     string `xml:"value"`
}

// findCollection returns the first top-level collection named id across the
// submodels. Nested collections are service and state entries, never the
// containers themselves. The pointer is valid until the document is modified.
func (e *environment) findCollection(id string) *collection {
	for i := range e.Submodels {
		els := &e.Submodels[i].Elements
		for j := range els.Collections {
			if els.Collections[j].IDShort == id {
				return &els.Collections[j]
			}
		}
	}
	return nil
}

// ensureCollection returns the collection named id, creating it in the
// first submodel when absent.
func (e *environment) ensureCollection(id string) *collection {
	if c := e.findCollection(id); c != nil {
		return c
	}
	if len(e.Submodels) == 0 {
		e.Submodels = append(e.Submodels, submodel{IDShort: defaultSubmodelID, ID: defaultSubmodelID})
	}
	els := &e.Submodels[0].Elements
	els.Collections = append(els.Collections, collection{IDShort: id})
	return &els.Collections[len(els.Collections)-1]
}

// newDocument builds a document holding services with Idle set.
func newDocument(id string, services []ServiceDescriptor) *environment {
	if id == "" {
		id = defaultSubmodelID
	}
	e := &environment{
		Xmlns:     Namespace,
		Submodels: []submodel{{IDShort: id, ID: id}},
	}
	e.setServices(services)
	e.setStates(StateFlags{StateIdle: true})
	return e
}

// setServices replaces the Services collection contents.
func (e *environment) setServices(services []ServiceDescriptor) {
	c := e.ensureCollection(servicesID)
	c.Value.Properties = nil
	c.Value.Collections = make([]collection, 0, len(services))
	for _, s := range services {
		c.Value.Collections = append(c.Value.Collections, collection{
			IDShort: s.Name,
			Value: elementList{Properties: []property{
				{IDShort: propInput, ValueType: valueTypeString, Value: s.Input},
				{IDShort: propOutput, ValueType: valueTypeString, Value: s.Output},
				{IDShort: propDriverFunction, ValueType: valueTypeString, Value: s.DriverFunction},
				{IDShort: propEffector, ValueType: valueTypeString, Value: s.Effector},
			}},
		})
	}
}

// setStates writes the three state flags. Properties with other names in
// OperationalStates are left untouched.
func (e *environment) setStates(flags StateFlags) {
	c := e.ensureCollection(statesID)
	seen := make(map[State]bool, len(ValidStates))
	for i := range c.Value.Properties {
		p := &c.Value.Properties[i]
		s := State(p.IDShort)
		if !s.IsValid() {
			continue
		}
		p.Value = strconv.FormatBool(flags[s])
		p.ValueType = valueTypeBoolean
		seen[s] = true
	}
	for _, s := range ValidStates {
		if !seen[s] {
			c.Value.Properties = append(c.Value.Properties, property{
				IDShort:   string(s),
				ValueType: valueTypeBoolean,
				Value:     strconv.FormatBool(flags[s]),
			})
		}
	}
}

// decodeDocument parses data and extracts the service index and state flags.
// Every failure wraps ErrParse.
func decodeDocument(data []byte) (*environment, []ServiceDescriptor, StateFlags, error) {
	var e environment
	if err := xml.Unmarshal(data, &e); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	e.Xmlns = Namespace

	var services []ServiceDescriptor
	if c := e.findCollection(servicesID); c != nil {
		seen := make(map[string]bool, len(c.Value.Collections))
		for _, sc := range c.Value.Collections {
			name := strings.TrimSpace(sc.IDShort)
			if name == "" {
				return nil, nil, nil, fmt.Errorf("%w: service without idShort", ErrParse)
			}
			if seen[name] {
				return nil, nil, nil, fmt.Errorf("%w: duplicate service %q", ErrParse, name)
			}
			seen[name] = true
			services = append(services, descriptorFrom(name, sc.Value.Properties))
		}
	}

	flags := StateFlags{}
	if c := e.findCollection(statesID); c != nil {
		for _, p := range c.Value.Properties {
			s := State(p.IDShort)
			if !s.IsValid() {
				continue
			}
			v, err := strconv.ParseBool(strings.TrimSpace(p.Value))
			if err != nil {
				return nil, nil, nil, fmt.Errorf("%w: state %s has value %q", ErrParse, s, p.Value)
			}
			flags[s] = v
		}
	}

	return &e, services, flags, nil
}

func descriptorFrom(name string, props []property) ServiceDescriptor {
	d := ServiceDescriptor{Name: name}
	for _, p := range props {
		v := strings.TrimSpace(p.Value)
		switch p.IDShort {
		case propInput:
			d.Input = v
		case propOutput:
			d.Output = v
		case propDriverFunction:
			d.DriverFunction = v
		case propEffector:
			d.Effector = v
		}
	}
	return d
}

// encode renders the document with an XML declaration and indentation.
func (e *environment) encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(e); err != nil {
		return nil, fmt.Errorf("encoding registry document: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
