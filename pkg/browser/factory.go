package browser

// PageConstructor builds the PageObject for one page kind. The registry
// fills in ID, payload data and login state afterwards.
type PageConstructor func(location, identity string) *PageObject

// PageFactory maps a page-kind tag to its constructor. It replaces
// runtime type-hierarchy walking with an explicit registry populated at
// startup; asking for an unregistered kind is a StructuralError.
type PageFactory struct {
	constructors map[string]PageConstructor
}

// NewPageFactory returns an empty factory with the generic kind
// pre-registered.
func NewPageFactory() *PageFactory {
	f := &PageFactory{constructors: make(map[string]PageConstructor)}
	f.Register(GenericPageKind, func(location, identity string) *PageObject {
		return &PageObject{Location: location, Identity: identity, Kind: GenericPageKind}
	})
	return f
}

// GenericPageKind is the fallback kind for pages without a dedicated
// constructor registration.
const GenericPageKind = "generic"

// Register installs (or replaces) the constructor for kind.
func (f *PageFactory) Register(kind string, ctor PageConstructor) {
	f.constructors[kind] = ctor
}

// New constructs a page of the given kind.
func (f *PageFactory) New(kind, location, identity string) (*PageObject, error) {
	if kind == "" {
		kind = GenericPageKind
	}
	ctor, ok := f.constructors[kind]
	if !ok {
		return nil, structuralf("no page constructor registered for kind %q", kind)
	}
	p := ctor(location, identity)
	if p.Kind == "" {
		p.Kind = kind
	}
	return p, nil
}
