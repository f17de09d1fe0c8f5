package dom

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultViewport is the viewport of a freshly parsed Static document.
var DefaultViewport = Viewport{Width: 1280, Height: 800}

// Style is an injected style block.
type Style struct {
	ID     string
	Method string
	CSS    string
}

// Static is a Document over parsed HTML. Layout is not computed: geometry
// comes from SetRect and the viewport from SetViewport. It is safe for
// concurrent use.
type Static struct {
	mu       sync.Mutex
	root     *html.Node
	rects    map[*html.Node]Rect
	viewport Viewport
	styles   map[string]*html.Node
	onStyle  func(*Static)
}

// ParseStatic parses an HTML document.
func ParseStatic(r io.Reader) (*Static, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return &Static{
		root:     root,
		rects:    make(map[*html.Node]Rect),
		viewport: DefaultViewport,
		styles:   make(map[string]*html.Node),
	}, nil
}

// NewStatic parses src. It panics on a parse error and is meant for tests
// and literals.
func NewStatic(src string) *Static {
	s, err := ParseStatic(strings.NewReader(src))
	if err != nil {
		panic(err)
	}
	return s
}

// SetViewport sets the viewport size.
func (s *Static) SetViewport(width, height float64) {
	s.mu.Lock()
	s.viewport = Viewport{Width: width, Height: height}
	s.mu.Unlock()
}

// SetRect assigns geometry to the first element matching selector.
func (s *Static) SetRect(selector string, r Rect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	found, err := find(s.root, selector)
	if err != nil {
		return err
	}
	if found.Length() == 0 {
		return fmt.Errorf("dom: set rect: no element matches %q", selector)
	}
	s.rects[found.Get(0)] = r
	return nil
}

// OnStyleChange registers fn to run after every InjectStyle and RemoveStyle.
// Tests use it to move elements in response to a correction.
func (s *Static) OnStyleChange(fn func(*Static)) {
	s.mu.Lock()
	s.onStyle = fn
	s.mu.Unlock()
}

// Style returns the injected style block with id.
func (s *Static) Style(id string) (Style, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.styles[id]
	if !ok {
		return Style{}, false
	}
	return styleOf(id, n), true
}

// Styles returns every injected style block.
func (s *Static) Styles() []Style {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Style, 0, len(s.styles))
	for id, n := range s.styles {
		out = append(out, styleOf(id, n))
	}
	return out
}

// Count implements Document.
func (s *Static) Count(_ context.Context, selector string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found, err := find(s.root, selector)
	if err != nil {
		return 0, err
	}
	return found.Length(), nil
}

// Measure implements Document.
func (s *Static) Measure(_ context.Context, selector string) (Box, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found, err := find(s.root, selector)
	if err != nil {
		return Box{}, err
	}
	if found.Length() == 0 {
		return Box{}, nil
	}
	first := found.First()
	return Box{Found: true, Rect: s.rects[first.Get(0)], Displayed: displayed(first)}, nil
}

// HasClass implements Document.
func (s *Static) HasClass(_ context.Context, selector, class string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found, err := find(s.root, selector)
	if err != nil {
		return false, err
	}
	return found.First().HasClass(class), nil
}

// Viewport implements Document.
func (s *Static) Viewport(context.Context) (Viewport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport, nil
}

// InjectStyle implements Document. The block is inserted into <head> as a
// real <style> element so it is visible to selector queries.
func (s *Static) InjectStyle(_ context.Context, id, method, css string) error {
	if id == "" {
		return fmt.Errorf("dom: inject style: empty id")
	}
	s.mu.Lock()
	if old, ok := s.styles[id]; ok && old.Parent != nil {
		old.Parent.RemoveChild(old)
	}
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     "style",
		DataAtom: atom.Style,
		Attr: []html.Attribute{
			{Key: "id", Val: id},
			{Key: "data-method", Val: method},
		},
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: css})
	s.head().AppendChild(n)
	s.styles[id] = n
	hook := s.onStyle
	s.mu.Unlock()

	if hook != nil {
		hook(s)
	}
	return nil
}

// RemoveStyle implements Document.
func (s *Static) RemoveStyle(_ context.Context, id string) error {
	s.mu.Lock()
	n, ok := s.styles[id]
	if ok {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		delete(s.styles, id)
	}
	hook := s.onStyle
	s.mu.Unlock()

	if ok && hook != nil {
		hook(s)
	}
	return nil
}

func (s *Static) head() *html.Node {
	if head := goquery.NewDocumentFromNode(s.root).Find("head"); head.Length() > 0 {
		return head.Get(0)
	}
	// html.Parse always synthesizes <head>; keep a fallback for fragments.
	return s.root
}

func styleOf(id string, n *html.Node) Style {
	st := Style{ID: id, Method: goquery.NewDocumentFromNode(n).AttrOr("data-method", "")}
	if n.FirstChild != nil {
		st.CSS = n.FirstChild.Data
	}
	return st
}
