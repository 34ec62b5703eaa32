package entity

import (
	"fmt"
	"strings"
)

// Kind is the closed set of entity kinds a query path can visit.
type Kind int

const (
	KindNode Kind = iota + 1
	KindLink
	KindGroup
	KindUser
	KindComputer
	KindAuthInfo
	KindComment
	KindLog
)

var kindNames = map[Kind]string{
	KindNode:     "node",
	KindLink:     "link",
	KindGroup:    "group",
	KindUser:     "user",
	KindComputer: "computer",
	KindAuthInfo: "authinfo",
	KindComment:  "comment",
	KindLog:      "log",
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindNode, KindLink, KindGroup, KindUser, KindComputer, KindAuthInfo, KindComment, KindLog}
}

// String returns the lower-case wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// Title is the capitalised kind name, used as the base of generated tags.
func (k Kind) Title() string {
	switch k {
	case KindAuthInfo:
		return "AuthInfo"
	default:
		name := k.String()
		return strings.ToUpper(name[:1]) + name[1:]
	}
}

// ParseKind maps a wire name back to a Kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}
