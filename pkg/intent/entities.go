package intent

// Entities carries intent-specific extractions as tagged variants.
// At most one variant is set per utterance; intents without entities
// leave all of them nil.
type Entities struct {
	Send   *SendEntities
	Search *SearchEntities
	Read   *ReadEntities
}

// Empty reports whether no variant carries any value.
func (e Entities) Empty() bool {
	return e.Send == nil && e.Search == nil && e.Read == nil
}

// SendEntities holds fields extracted for a send or reply request.
// A nil field means the utterance did not mention it.
type SendEntities struct {
	Recipient string
	Subject   string
	Body      string
}

// SearchEntities holds the query and target field for a search request.
type SearchEntities struct {
	Query string
	Field SearchField
}

// SearchField names which part of a message a search query applies to.
type SearchField string

const (
	FieldSubject SearchField = "subject"
	FieldFrom    SearchField = "from"
	FieldBody    SearchField = "body"
	FieldAll     SearchField = "all"
)

// ReadEntities holds how many messages a read request asked for.
// Count zero means the user did not specify one.
type ReadEntities struct {
	Count  int
	Filter string
}
