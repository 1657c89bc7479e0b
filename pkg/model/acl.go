package model

import "github.com/lumenswitch/orchagent/pkg/sai"

// ACLStage is the pipeline stage an ACL table attaches to.
type ACLStage int

const (
	ACLStageIngress ACLStage = iota
	ACLStageEgress
)

// ACLTableType distinguishes the rule dialect a table accepts.
type ACLTableType int

const (
	ACLTableL3 ACLTableType = iota
	ACLTableMirror
	ACLTablePFCWD
	ACLTableDTel
	ACLTableDrop
)

// ACLTable mirrors one ACL_TABLE row.
type ACLTable struct {
	Name    string
	ID      sai.ObjectID
	Stage   ACLStage
	Type    ACLTableType
	Ports   map[string]bool
	GroupID map[string]sai.ObjectID // per-port table-group member handle binding this table into that port's group
	Rules   map[string]*ACLRule
}

func NewACLTable(name string, stage ACLStage, typ ACLTableType) *ACLTable {
	return &ACLTable{
		Name:    name,
		Stage:   stage,
		Type:    typ,
		Ports:   make(map[string]bool),
		GroupID: make(map[string]sai.ObjectID),
		Rules:   make(map[string]*ACLRule),
	}
}

// ACLMatchKind distinguishes how a match value is encoded.
type ACLMatchKind int

const (
	MatchFieldMask ACLMatchKind = iota // (data, mask) pair — IP prefix, integer-with-mask
	MatchRange                          // min-max, translated to a shared range object
	MatchPortList                       // Data holds a comma-separated port alias list
)

// ACLMatch is one match-attribute value.
type ACLMatch struct {
	Kind  ACLMatchKind
	Data  string
	Mask  string
	Min   int
	Max   int
	Range ACLRangeType
}

// ACLRangeType distinguishes the SAI range kinds a rule may reference.
type ACLRangeType int

const (
	RangeL4SrcPort ACLRangeType = iota
	RangeL4DstPort
)

// ACLRangeKey identifies a shared range object.
type ACLRangeKey struct {
	Type ACLRangeType
	Min  int
	Max  int
}

// ACLRule mirrors one ACL rule row.
type ACLRule struct {
	Table      string
	Name       string
	ID         sai.ObjectID
	Priority   int
	Match      map[string]ACLMatch
	Action     map[string]string
	CounterID  sai.ObjectID
	RangeIDs   []ACLRangeKey
	MirrorSessionActive bool // for MIRROR-type rules, tracks whether currently programmed
}

func NewACLRule(table, name string) *ACLRule {
	return &ACLRule{Table: table, Name: name, Match: make(map[string]ACLMatch), Action: make(map[string]string)}
}

// ACLRangeEntry has the shape of a shared-range bookkeeping record. AclOrch's
// range allocator keeps its own unexported record and does not use this type.
type ACLRangeEntry struct {
	ID       sai.ObjectID
	RefCount int
}
