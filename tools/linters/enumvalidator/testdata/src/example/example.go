package example

type EventKind string

const (
	EventKindCreated EventKind = "created"
	EventKindClosed  EventKind = "closed"
)

type Severity string

const (
	SeverityLow Severity = "low"
)

type Event struct {
	Kind EventKind
}

type Alert struct {
	Severity Severity
}

func bad() {
	e := &Event{}
	e.Kind = "reopened" // want "enum field Kind assigned string literal"

	a := &Alert{}
	a.Severity = "critical" // want "enum field Severity assigned string literal"
}

func good() {
	e := &Event{}
	e.Kind = EventKindCreated // OK: using constant

	a := &Alert{}
	a.Severity = SeverityLow // OK: using constant
}

func alsoGood() {
	// OK: Variable, not literal
	kind := EventKindClosed
	e := &Event{Kind: kind}
	_ = e
}
