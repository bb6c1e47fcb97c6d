package diff

// AddedLines returns the new-file line number to line text mapping for every
// added line of the patch. Context, removed, and unknown lines never appear.
func (fp FilePatch) AddedLines() map[int]string {
	m := make(map[int]string)
	for _, h := range fp.Hunks {
		for _, l := range h.Lines {
			if l.Kind == KindAdded && l.NewLine != nil {
				m[*l.NewLine] = l.Content
			}
		}
	}
	return m
}

// Positions returns the new-file line number to absolute patch position
// mapping for every added line. Lines parsed before the first valid hunk
// header carry no position and are omitted.
func (fp FilePatch) Positions() map[int]int {
	m := make(map[int]int)
	for _, h := range fp.Hunks {
		for _, l := range h.Lines {
			if l.Kind == KindAdded && l.NewLine != nil && l.Position > 0 {
				m[*l.NewLine] = l.Position
			}
		}
	}
	return m
}

// FindPosition returns the absolute patch position for a new-file line
// number, or nil when the line is not an added line of this patch.
func (fp FilePatch) FindPosition(newLine int) *int {
	if newLine <= 0 {
		return nil
	}
	if pos, ok := fp.Positions()[newLine]; ok {
		return intPtr(pos)
	}
	return nil
}
