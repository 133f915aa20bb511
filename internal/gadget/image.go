package gadget

// Image is the decoded form of the "image" request field. It is one of
// NewFile, ExistingPath or Absent.
type Image interface {
	isImage()
}

// NewFile is an uploaded file. Data is nil when the upload exceeded the size
// limit and was not read; Size always carries the declared size.
type NewFile struct {
	Name string
	Size int64
	Data []byte
}

// ExistingPath is a storage key echoed back by the client instead of a file.
type ExistingPath struct {
	Path string
}

// Absent means the request carried no image field.
type Absent struct{}

func (NewFile) isImage()      {}
func (ExistingPath) isImage() {}
func (Absent) isImage()       {}
