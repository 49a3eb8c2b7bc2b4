// Package epubreplace performs whole-word find and replace across the
// content documents of ePub 2 and ePub 3 packages.
//
// Only document text is rewritten. Element names, attributes, comments and
// processing instructions pass through untouched, and the repacked archive
// keeps every entry in its original order with the stored "mimetype" entry
// first. DRM-protected files are detected and rejected with [ErrDRMProtected].
//
// # Replacement Plans
//
// A [Plan] pairs search tokens with replacements. [ParsePlan] splits
// comma-separated lists and aligns them:
//
//	plan, err := epubreplace.ParsePlan("colour,centre", "color,center", epubreplace.PlanOptions{})
//
// Lists of equal length pair element-wise. A single search token with
// several replacements is broadcast to every replacement. Any other shape
// fails with [ErrUnsupportedReplacementShape] before any file is touched.
// [LoadPlanFile] reads the same lists from YAML, which allows tokens that
// contain commas.
//
// A token matches only where it is not flanked by a letter, digit,
// combining mark or underscore, so "cat" never matches inside "concatenate".
// [ModeSequential] applies pairs one after another; [ModeSimultaneous]
// applies them in a single pass, so swaps such as cat↔dog work.
//
// # Rewriting a Package
//
// A [Rewriter] applies a plan to one ePub at a time:
//
//	rw, err := epubreplace.NewRewriter(plan, epubreplace.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := rw.RewriteFile(ctx, "book.epub", epubreplace.DefaultOutputPath("book.epub"))
//
// Every rewritten document starts with the same XML declaration and HTML5
// doctype. Documents that are not well-formed XML are recovered with an
// HTML parser and flagged as degraded in the [Report]; documents that
// cannot be processed at all are copied unchanged and reported as warnings.
//
// # Error Handling
//
// Errors fall into two categories that can be tested with [errors.Is]:
//   - [ErrConfiguration]: the plan is unusable ([ErrUnsupportedReplacementShape],
//     [ErrEmptySearchToken], [ErrEmptyPlan], [ErrInvalidMode])
//   - [ErrArchive]: the package cannot be read or written ([ErrArchiveNotFound],
//     [ErrArchiveCorrupt], [ErrMissingMimetype])
package epubreplace
