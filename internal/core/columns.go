package core

// Field is a logical listing attribute resolved from one of several column names.
type Field string

const (
	FieldExternalID Field = "external_id"
	FieldTitle      Field = "title"
	FieldPrice      Field = "price"
	FieldQuantity   Field = "quantity"
	FieldStatus     Field = "status"
	FieldStartDate  Field = "start_date"
	FieldEndDate    Field = "end_date"
	FieldEndReason  Field = "end_reason"
	FieldSKU        Field = "sku"
)

// fieldSynonyms lists accepted column names per field, most specific first.
// Names are lowercase; headers are lowercased before lookup.
var fieldSynonyms = map[Field][]string{
	FieldExternalID: {"item id", "item number", "itemid", "listing id", "item_id"},
	FieldTitle:      {"title", "item title", "listing title", "name"},
	FieldPrice:      {"price", "current price", "start price", "buy it now price", "listing price"},
	FieldQuantity:   {"quantity available", "available quantity", "quantity", "qty"},
	FieldStatus:     {"status", "listing status", "state"},
	FieldStartDate:  {"start date", "start time", "listed date", "creation date"},
	FieldEndDate:    {"end date", "end time", "ended date"},
	FieldEndReason:  {"end reason", "reason ended", "ended reason"},
	FieldSKU:        {"custom label (sku)", "custom label", "sku"},
}

// formatSynonyms replaces the default synonym list for a field in one format.
var formatSynonyms = map[Format]map[Field][]string{
	FormatSold: {
		FieldPrice:    {"sold price", "sale price", "sold for", "total price", "price"},
		// Units sold are not stock on hand; "quantity sold" stays in Extra.
		FieldQuantity: {"quantity available", "available quantity"},
		FieldEndDate:  {"sale date", "sold date", "paid on date", "end date"},
	},
	FormatUnsold: {
		FieldPrice: {"price", "start price", "current price"},
	},
}

// defaultQuantity is used when no quantity column yields a valid count.
var defaultQuantity = map[Format]int{
	FormatActive: 1,
	FormatSold:   0,
	FormatUnsold: 0,
}

// synonymsFor returns the accepted column names for field in format.
func synonymsFor(format Format, field Field) []string {
	if over, ok := formatSynonyms[format][field]; ok {
		return over
	}
	return fieldSynonyms[field]
}

// columnMap holds, per field, every present column position in synonym order.
type columnMap map[Field][]int

// first returns the first resolved position for field, or -1.
func (m columnMap) first(f Field) int {
	if pos := m[f]; len(pos) > 0 {
		return pos[0]
	}
	return -1
}

// resolveColumns looks up every field's synonyms in idx.
func resolveColumns(format Format, idx HeaderIndex) columnMap {
	fields := []Field{
		FieldExternalID, FieldTitle, FieldPrice, FieldQuantity, FieldStatus,
		FieldStartDate, FieldEndDate, FieldEndReason, FieldSKU,
	}
	m := make(columnMap, len(fields))
	for _, f := range fields {
		for _, name := range synonymsFor(format, f) {
			if pos, ok := idx[name]; ok {
				m[f] = append(m[f], pos)
			}
		}
	}
	return m
}

// mapped reports which column positions were consumed by a field.
func (m columnMap) mapped() map[int]bool {
	used := make(map[int]bool)
	for _, positions := range m {
		for _, p := range positions {
			used[p] = true
		}
	}
	return used
}
