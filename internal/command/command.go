package command

import (
	"fmt"
	"strings"
)

// MaxNameLen is the longest accepted name in bytes.
const MaxNameLen = 49

// Kind identifies the operation a command performs.
type Kind int

const (
	KindInsert Kind = iota + 1
	KindDelete
	KindSearch
)

var kindNames = map[Kind]string{
	KindInsert: "insert",
	KindDelete: "delete",
	KindSearch: "search",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps an operation keyword to its Kind.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// Command is one parsed line of a command file.
// Value is meaningful only for KindInsert.
type Command struct {
	Kind  Kind
	Name  string
	Value int32
	Line  int // 1-based source line, 0 if built directly
}

// New builds a validated command.
func New(kind Kind, name string, value int32) (Command, error) {
	if _, ok := kindNames[kind]; !ok {
		return Command{}, fmt.Errorf("unknown command kind %d", int(kind))
	}
	if err := ValidateName(name); err != nil {
		return Command{}, err
	}
	return Command{Kind: kind, Name: name, Value: value}, nil
}

// ValidateName checks the bounded-string rules for record names.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("name is empty")
	case len(name) > MaxNameLen:
		return fmt.Errorf("name is %d bytes, max %d", len(name), MaxNameLen)
	case strings.IndexByte(name, 0) >= 0:
		return fmt.Errorf("name contains NUL byte")
	}
	return nil
}

func (c Command) String() string {
	return fmt.Sprintf("%s,%s,%d", c.Kind, c.Name, c.Value)
}
