package ai

// EntityTypes are the default graph node categories extracted from
// insurance documents.
var EntityTypes = []string{
	"Coverage",
	"Exclusion",
	"Condition",
	"Definition",
	"Endorsement",
	"Form",
	"Peril",
	"Limit",
	"Deductible",
	"Organization",
	"Location",
	"Term",
}

// RelationshipTypes are the default graph edge categories.
var RelationshipTypes = []string{
	"RELATES_TO",
	"PART_OF",
	"MODIFIES",
	"EXCLUDES",
	"COVERS",
	"DEFINES",
	"REFERENCES",
	"LIMITS",
	"CONTRADICTS",
}
