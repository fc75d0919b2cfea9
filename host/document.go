// Package host is an in-process document host. It owns a parsed HTML tree
// and answers the bridge call surface against it, using
// golang.org/x/net/html for parsing and rendering and goquery/cascadia for
// selector matching.
package host

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/chrisuehlinger/hostdom/bridge"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// EventFunc receives events originated by the host, such as a keydown
// after each typed character.
type EventFunc func(h bridge.Handle, eventType string) error

// Option configures a Document.
type Option func(*Document)

// WithLogOutput sets where the log operation writes; one line per message.
func WithLogOutput(w io.Writer) Option {
	return func(d *Document) {
		if w != nil {
			d.out = w
		}
	}
}

// WithLogger sets the document logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Document) {
		if l != nil {
			d.logger = l
		}
	}
}

// Document is a parsed HTML document that implements bridge.Host.
// Element handles are integers minted on first sight and stable for the
// life of the document.
type Document struct {
	mu      sync.Mutex
	root    *html.Node
	doc     *goquery.Document
	handles map[*html.Node]int64
	nodes   map[int64]*html.Node
	next    int64
	focus   *html.Node
	onEvent EventFunc
	out     io.Writer
	logger  *zap.Logger
}

// Parse reads an HTML document from r.
func Parse(r io.Reader, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	d := &Document{
		root:    root,
		doc:     goquery.NewDocumentFromNode(root),
		handles: make(map[*html.Node]int64),
		nodes:   make(map[int64]*html.Node),
		out:     io.Discard,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// ParseString parses an HTML document from a string.
func ParseString(s string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(s), opts...)
}

// OnEvent sets the receiver of host-originated events.
func (d *Document) OnEvent(fn EventFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onEvent = fn
}

// Call implements bridge.Host.
func (d *Document) Call(op string, args ...any) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch op {
	case bridge.OpLog:
		msg, err := stringArg(op, args, 0)
		if err != nil {
			return nil, err
		}
		_, err = fmt.Fprintln(d.out, msg)
		return nil, err

	case bridge.OpQuerySelectorAll:
		selector, err := stringArg(op, args, 0)
		if err != nil {
			return nil, err
		}
		return d.querySelectorAll(selector)

	case bridge.OpGetAttribute:
		n, err := d.nodeArg(op, args, 0)
		if err != nil {
			return nil, err
		}
		name, err := stringArg(op, args, 1)
		if err != nil {
			return nil, err
		}
		if v, ok := getAttr(n, name); ok {
			return v, nil
		}
		return nil, nil

	case bridge.OpSetAttribute:
		n, err := d.nodeArg(op, args, 0)
		if err != nil {
			return nil, err
		}
		name, err := stringArg(op, args, 1)
		if err != nil {
			return nil, err
		}
		value, err := stringArg(op, args, 2)
		if err != nil {
			return nil, err
		}
		setAttr(n, name, value)
		return nil, nil

	case bridge.OpInnerHTMLSet:
		n, err := d.nodeArg(op, args, 0)
		if err != nil {
			return nil, err
		}
		markup, err := stringArg(op, args, 1)
		if err != nil {
			return nil, err
		}
		return nil, d.setInnerHTML(n, markup)
	}

	return nil, fmt.Errorf("%s: %w", op, bridge.ErrUnknownOp)
}

func (d *Document) querySelectorAll(selector string) (any, error) {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid selector %q: %w", bridge.OpQuerySelectorAll, selector, err)
	}
	nodes := d.doc.FindMatcher(matcher).Nodes
	handles := make([]any, len(nodes))
	for i, n := range nodes {
		handles[i] = d.handleFor(n)
	}
	return handles, nil
}

func (d *Document) setInnerHTML(n *html.Node, markup string) error {
	children, err := html.ParseFragment(strings.NewReader(markup), n)
	if err != nil {
		return fmt.Errorf("%s: parse markup: %w", bridge.OpInnerHTMLSet, err)
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	for _, c := range children {
		n.AppendChild(c)
	}
	d.logger.Debug("replaced inner html", zap.Int64("handle", d.handles[n]), zap.Int("children", len(children)))
	return nil
}

// handleFor returns the handle of n, minting one if needed.
func (d *Document) handleFor(n *html.Node) int64 {
	if id, ok := d.handles[n]; ok {
		return id
	}
	d.next++
	d.handles[n] = d.next
	d.nodes[d.next] = n
	return d.next
}

func (d *Document) nodeArg(op string, args []any, i int) (*html.Node, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("%s: missing argument %d", op, i)
	}
	h, err := bridge.HandleOf(args[i])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	n, err := d.node(h)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func (d *Document) node(h bridge.Handle) (*html.Node, error) {
	if h.IsString() {
		return nil, fmt.Errorf("no element with handle %s", h)
	}
	n, ok := d.nodes[h.Value().(int64)]
	if !ok {
		return nil, fmt.Errorf("no element with handle %s", h)
	}
	return n, nil
}

func stringArg(op string, args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%s: missing argument %d", op, i)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("%s: argument %d is %T, want string", op, i, args[i])
	}
	return s, nil
}

func getAttr(n *html.Node, name string) (string, bool) {
	key := strings.ToLower(name)
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, value string) {
	key := strings.ToLower(name)
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

// Scripts returns the src of every script element, in document order.
func (d *Document) Scripts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var srcs []string
	d.doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		srcs = append(srcs, s.AttrOr("src", ""))
	})
	return srcs
}

// Focus focuses the first element matching selector and returns its
// handle.
func (d *Document) Focus(selector string) (bridge.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return bridge.Handle{}, fmt.Errorf("focus: invalid selector %q: %w", selector, err)
	}
	nodes := d.doc.FindMatcher(matcher).Nodes
	if len(nodes) == 0 {
		return bridge.Handle{}, fmt.Errorf("focus: no element matches %q", selector)
	}
	d.focus = nodes[0]
	return bridge.IntHandle(d.handleFor(d.focus)), nil
}

// Focused returns the handle of the focused element, if any.
func (d *Document) Focused() (bridge.Handle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.focus == nil {
		return bridge.Handle{}, false
	}
	return bridge.IntHandle(d.handleFor(d.focus)), true
}

// Click clicks element h. Clicking an input focuses it and clears its
// value; clicking anything else clears the focus.
func (d *Document) Click(h bridge.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.node(h)
	if err != nil {
		return fmt.Errorf("click: %w", err)
	}
	d.focus = nil
	if n.Type == html.ElementNode && n.DataAtom == atom.Input {
		d.focus = n
		setAttr(n, "value", "")
	}
	return nil
}

// Type appends text to the focused element's value one character at a
// time. Each character fires a keydown on the element; the first event
// error stops typing.
func (d *Document) Type(text string) error {
	for _, ch := range text {
		d.mu.Lock()
		if d.focus == nil {
			d.mu.Unlock()
			return fmt.Errorf("type: no element has focus")
		}
		value, _ := getAttr(d.focus, "value")
		setAttr(d.focus, "value", value+string(ch))
		h := bridge.IntHandle(d.handleFor(d.focus))
		fire := d.onEvent
		d.mu.Unlock()

		if fire == nil {
			continue
		}
		if err := fire(h, "keydown"); err != nil {
			return fmt.Errorf("type: keydown on %s: %w", h, err)
		}
	}
	return nil
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}
