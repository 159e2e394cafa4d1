package source

// FileID uniquely identifies a source file referenced by debug info.
type FileID uint32

// NoFileID marks the absence of a source file (synthesized nodes).
const NoFileID FileID = 0

// File records just enough about a source file to populate debug info;
// content and line indexing belong to the (out of scope) frontend.
type File struct {
	ID   FileID
	Path string
}
