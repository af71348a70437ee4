package ninebox

// Option applies a configuration option to the Classifier.
type Option func(*Classifier)

// WithTable replaces the position lookup table. Cells missing from t
// classify as unclassified.
func WithTable(t Table) Option {
	return func(c *Classifier) {
		if len(t) > 0 {
			c.table = t
		}
	}
}
