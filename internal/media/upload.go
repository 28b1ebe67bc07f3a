package media

// Upload is the payload form of a handle, as sent to remote collaborators.
type Upload struct {
	Name string
	MIME string
	Data []byte
}

// Upload returns the payload for h, or false once h has been released.
func (r *Registry) Upload(h *Handle) (Upload, bool) {
	data, ok := r.Data(h)
	if !ok {
		return Upload{}, false
	}
	return Upload{Name: h.Name, MIME: h.MIME, Data: data}, true
}
