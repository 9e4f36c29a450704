package ast

import "fmt"

// ValidatePrivateNames checks that every private-name use (`obj.#x`,
// `#x in obj`) falls inside some enclosing class that declares `#x`,
// tracked per enclosing class (ECMA-262 early errors for #names).
func ValidatePrivateNames(class *Class) error {
	names := class.PrivateNames
	if names == nil {
		names = map[string]bool{}
	}
	var err error
	WalkFunc(class.Body, func(n Node) bool {
		if err != nil {
			return false
		}
		switch v := n.(type) {
		case *MemberExpression:
			if p, ok := v.Property.(*PrivateIdentifier); ok && !names[p.Name] {
				err = fmt.Errorf("private field %q must be declared in an enclosing class", p.Name)
				return false
			}
		case *BinaryExpression:
			if v.Operator == "in" {
				if p, ok := v.Left.(*PrivateIdentifier); ok && !names[p.Name] {
					err = fmt.Errorf("private field %q must be declared in an enclosing class", p.Name)
					return false
				}
			}
		case *Class, *ClassExpression, *ClassDeclaration:
			// Nested classes carry their own private-name set; don't
			// descend using the outer class's names.
			return false
		}
		return true
	})
	return err
}

// CollectPrivateNames gathers the names a class body declares directly
// (its own #field/#method members), used to seed Class.PrivateNames.
func CollectPrivateNames(body *ClassBody) map[string]bool {
	names := make(map[string]bool)
	for _, m := range body.Members {
		if p, ok := m.Key.(*PrivateIdentifier); ok {
			names[p.Name] = true
		}
	}
	return names
}
