// Extensions to the go-check unittest framework.
//
// NOTE: see https://github.com/go-check/check/pull/6 for reasons why these
// checkers live here.
package gocheck2

import (
	"fmt"
	"reflect"

	. "gopkg.in/check.v1"
)

// -----------------------------------------------------------------------
// IsTrue / IsFalse checker.

type isBoolValueChecker struct {
	*CheckerInfo
	expected bool
}

func (checker *isBoolValueChecker) Check(
	params []interface{},
	names []string) (
	result bool,
	error string) {

	obtained, ok := params[0].(bool)
	if !ok {
		return false, "Argument to " + checker.Name + " must be bool"
	}

	return obtained == checker.expected, ""
}

// The IsTrue checker verifies that the obtained value is true.
//
// For example:
//
//	c.Assert(value, IsTrue)
var IsTrue Checker = &isBoolValueChecker{
	&CheckerInfo{Name: "IsTrue", Params: []string{"obtained"}},
	true,
}

// The IsFalse checker verifies that the obtained value is false.
//
// For example:
//
//	c.Assert(value, IsFalse)
var IsFalse Checker = &isBoolValueChecker{
	&CheckerInfo{Name: "IsFalse", Params: []string{"obtained"}},
	false,
}

// -----------------------------------------------------------------------
// NoErr checker.

type noErrChecker struct {
	*CheckerInfo
}

func (checker *noErrChecker) Check(
	params []interface{},
	names []string) (
	result bool,
	error string) {

	if params[0] == nil {
		return true, ""
	}
	err, ok := params[0].(interface{ Error() string })
	if !ok {
		return false, "Argument to NoErr must be an error"
	}
	return false, fmt.Sprintf("unexpected error: %s", err.Error())
}

// The NoErr checker verifies that the obtained error is nil, printing
// the full error message when it is not.
//
// For example:
//
//	c.Assert(err, NoErr)
var NoErr Checker = &noErrChecker{
	&CheckerInfo{Name: "NoErr", Params: []string{"obtained"}},
}

// -----------------------------------------------------------------------
// HasKey checker.

type hasKeyChecker struct {
	*CheckerInfo
}

func (checker *hasKeyChecker) Check(
	params []interface{},
	names []string) (
	result bool,
	error string) {

	m := reflect.ValueOf(params[0])
	if m.Kind() != reflect.Map {
		return false, "First argument to HasKey must be a map"
	}
	key := reflect.ValueOf(params[1])
	if !key.Type().AssignableTo(m.Type().Key()) {
		return false, "Second argument must be assignable to the map key type"
	}
	return m.MapIndex(key).IsValid(), ""
}

// The HasKey checker verifies that the obtained map contains the given
// key.
//
// For example:
//
//	c.Assert(myMap, HasKey, "foo")
var HasKey Checker = &hasKeyChecker{
	&CheckerInfo{Name: "HasKey", Params: []string{"obtained", "key"}},
}
