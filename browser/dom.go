//go:build js && wasm

package browser

import (
	"fmt"
	"syscall/js"
)

// Element is a DOM element used as a widget container.
type Element struct {
	selector string
	v        js.Value
}

// Select looks up the first element matching selector.
func Select(selector string) (*Element, error) {
	v, err := call(document(), "querySelector", selector)
	if err != nil {
		return nil, err
	}
	if v.IsNull() {
		return nil, fmt.Errorf("browser: no element matches %q", selector)
	}
	return &Element{selector: selector, v: v}, nil
}

func (e *Element) Selector() string { return e.selector }

func (e *Element) Attached() bool {
	return document().Call("contains", e.v).Bool()
}

func (e *Element) Clear() { e.v.Set("innerHTML", "") }

// SetText replaces the element's text content.
func (e *Element) SetText(s string) { e.v.Set("textContent", s) }

// Value returns the element's value property, as for inputs and selects.
func (e *Element) Value() string { return e.v.Get("value").String() }

// SetHidden toggles the "hidden" class.
func (e *Element) SetHidden(hidden bool) {
	e.v.Get("classList").Call("toggle", "hidden", hidden)
}
