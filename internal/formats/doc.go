// Package formats is the format catalog shared by every conversion component.
//
// It has no dependencies beyond the standard library so that any package can
// import it without creating cycles.
//
// # Categories
//
// Every file belongs to one [Category]:
//
//	formats.CategoryImage    // png, jpg, jpeg, webp, gif, bmp, tiff, tif, svg
//	formats.CategoryAudio    // mp3, wav, m4a, ogg, flac, aac, opus
//	formats.CategoryVideo    // mp4, webm, mov, mkv, avi, m4v
//	formats.CategoryDocument // pdf, docx, txt, md, markdown, html, htm, rtf, odt
//	formats.CategoryUnknown
//
// [Classify] decides the category of an upload from its declared MIME type
// and file name:
//
//	cat := formats.Classify("clip.mov", "video/quicktime") // CategoryVideo
//
// # Equivalence
//
// Some extensions are alternate spellings of one format. [Equivalent] treats
// jpg/jpeg, tif/tiff, mp4/m4v, htm/html and md/markdown as the same format,
// and [Canonical] returns the first spelling of each group.
//
// # Extensions
//
// Extensions are handled lowercase without a leading dot. [Normalize] and
// [Ext] produce that form from user input and file names.
package formats
