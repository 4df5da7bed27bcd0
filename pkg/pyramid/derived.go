package pyramid

// Derived is a pyramid whose layers are computed from the layers of another pyramid.
// Layers are not rescaled. Every source layer inside the [minScale, maxScale] window
// is passed through 'convert', and keeps its index and scale.
type Derived[In, Out any] struct {
	source   Source[In]
	minScale float64
	maxScale float64
	convert  func(In) Out

	version int64
	layers  []*Layer[Out]
	builds  int
}

// NewDerived creates a pyramid that converts the layers of 'source'.
// Requires 0 < minScale <= maxScale <= 1.
func NewDerived[In, Out any](source Source[In], minScale, maxScale float64, convert func(In) Out) (*Derived[In, Out], error) {
	if err := validateScales(minScale, maxScale); err != nil {
		return nil, err
	}
	return &Derived[In, Out]{
		source:   source,
		minScale: minScale,
		maxScale: maxScale,
		convert:  convert,
	}, nil
}

// Update brings the source up to date, and then recomputes our layers if the source changed
func (d *Derived[In, Out]) Update() {
	d.source.Update()
	v := d.source.Version()
	if v == 0 || v == d.version {
		return
	}
	d.build()
	d.version = v
}

func (d *Derived[In, Out]) build() {
	d.builds++
	d.layers = nil
	for _, src := range d.source.Layers() {
		if src.ScaleFactor > d.maxScale+scaleEpsilon || src.ScaleFactor < d.minScale-scaleEpsilon {
			continue
		}
		d.layers = append(d.layers, &Layer[Out]{
			Index:       src.Index,
			ScaleFactor: src.ScaleFactor,
			Width:       src.Width,
			Height:      src.Height,
			Data:        d.convert(src.Data),
		})
	}
}

func (d *Derived[In, Out]) Source() Source[In] {
	return d.source
}

func (d *Derived[In, Out]) Version() int64 {
	return d.version
}

func (d *Derived[In, Out]) BuildCount() int {
	return d.builds
}

func (d *Derived[In, Out]) Layers() []*Layer[Out] {
	return d.layers
}

func (d *Derived[In, Out]) IncrementalScaleFactor() float64 {
	return d.source.IncrementalScaleFactor()
}

func (d *Derived[In, Out]) ImageSize() (int, int) {
	return d.source.ImageSize()
}

func (d *Derived[In, Out]) Layer(index int) (*Layer[Out], bool) {
	return findLayer(d.layers, index)
}

func (d *Derived[In, Out]) LayerForScale(scale float64) (*Layer[Out], bool) {
	return findLayer(d.layers, IndexForScale(scale, d.IncrementalScaleFactor()))
}
