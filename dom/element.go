// Package dom provides element proxies over host-owned handles and the
// listener registry that dispatches events on them.
package dom

import (
	"fmt"

	"github.com/chrisuehlinger/hostdom/bridge"
)

// Element is a short-lived proxy for one host element. It holds nothing but
// the handle; every operation forwards to the host. Two Elements for the
// same host element share a Handle but are distinct values.
type Element struct {
	handle   bridge.Handle
	bridge   *bridge.Bridge
	registry *ListenerRegistry
}

// NewElement wraps h. Attribute and content operations go through b;
// listeners are kept in reg.
func NewElement(h bridge.Handle, b *bridge.Bridge, reg *ListenerRegistry) *Element {
	return &Element{handle: h, bridge: b, registry: reg}
}

// Handle returns the host handle this element wraps.
func (e *Element) Handle() bridge.Handle {
	return e.handle
}

// GetAttribute returns the host's value for attribute name. ok is false if
// the host reports it absent.
func (e *Element) GetAttribute(name string) (string, bool, error) {
	return e.bridge.GetAttribute(e.handle, name)
}

// SetAttribute sets attribute name on the host element.
func (e *Element) SetAttribute(name, value string) error {
	return e.bridge.SetAttribute(e.handle, name, value)
}

// SetInnerContent replaces the element's content on the host with markup.
func (e *Element) SetInnerContent(markup string) error {
	return e.bridge.SetInnerHTML(e.handle, markup)
}

// AddEventListener registers l for eventType on this element's handle.
func (e *Element) AddEventListener(eventType string, l Listener) {
	e.registry.Register(e.handle, eventType, l)
}

// DispatchEvent invokes the listeners for eventType on this element's
// handle with this element as receiver.
func (e *Element) DispatchEvent(eventType string) error {
	return e.registry.Dispatch(e.handle, eventType, e)
}

func (e *Element) String() string {
	return fmt.Sprintf("Element(%s)", e.handle)
}
