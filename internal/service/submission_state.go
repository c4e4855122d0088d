package service

import (
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/noah-isme/gema-classroom-api/internal/models"
	"github.com/noah-isme/gema-classroom-api/internal/window"
)

// storedFile describes an upload accepted by storage.
type storedFile struct {
	URL         string
	Name        string
	Size        int64
	ContentType string
	Checksum    string
}

// checkStart decides whether an exam clock may start for the student at now.
// existing is nil when the student has no submission row yet.
func checkStart(a models.Assignment, existing *models.Submission, now time.Time) error {
	if !a.IsExam() {
		return ErrNotAnExam
	}
	if !window.IsOpenForRead(a, now) {
		return ErrAssignmentLocked
	}
	if existing != nil {
		if existing.StartedAt != nil {
			return ErrAlreadyStarted
		}
		if existing.IsGraded() {
			return ErrSubmissionGraded
		}
		if existing.Status == models.SubmissionStatusAutoClosed {
			return ErrDeadlinePassed
		}
	}
	if window.FromPtr(a.DueAt).Passed(now) {
		return ErrDeadlinePassed
	}
	return nil
}

// checkSubmit decides whether an upload is accepted at now and whether it counts as late.
func checkSubmit(a models.Assignment, existing *models.Submission, now time.Time) (window.Verdict, error) {
	if !window.IsOpenForRead(a, now) {
		return window.Rejected, ErrAssignmentLocked
	}
	if existing != nil {
		if existing.IsGraded() {
			return window.Rejected, ErrSubmissionGraded
		}
		if existing.Status == models.SubmissionStatusAutoClosed {
			return window.Rejected, ErrDeadlinePassed
		}
	}
	if a.IsExam() && (existing == nil || existing.StartedAt == nil) {
		return window.Rejected, ErrExamNotStarted
	}

	verdict := window.AcceptsUpload(a, existing, now)
	if verdict == window.Rejected {
		return window.Rejected, ErrDeadlinePassed
	}
	return verdict, nil
}

// checkFile validates the file name and size against the assignment limits.
func checkFile(a models.Assignment, name string, size int64, defaultMaxMB int) error {
	if !a.AllowsFileName(name) {
		return ErrInvalidFileType
	}
	if limit := a.FileSizeLimit(defaultMaxMB); limit > 0 && size > limit {
		return ErrFileTooLarge
	}
	return nil
}

// signedExtensions name formats that always start with a recognisable signature.
var signedExtensions = map[string]struct{}{
	"pdf": {}, "doc": {}, "docx": {}, "xls": {}, "xlsx": {}, "ppt": {}, "pptx": {},
	"odt": {}, "ods": {}, "odp": {}, "zip": {}, "rar": {}, "7z": {},
	"png": {}, "jpg": {}, "gif": {}, "webp": {}, "mp3": {}, "mp4": {},
}

// containerExtensions are formats that may sniff as their generic container.
var containerExtensions = map[string][]string{
	"application/zip":           {"docx", "xlsx", "pptx", "odt", "ods", "odp", "epub"},
	"application/x-ole-storage": {"doc", "xls", "ppt"},
}

var extensionAliases = map[string]string{"jpeg": "jpg", "htm": "html", "tif": "tiff"}

func canonicalExtension(ext string) string {
	ext = models.NormalizeExtension(ext)
	if alias, ok := extensionAliases[ext]; ok {
		return alias
	}
	return ext
}

// checkContent rejects a file whose sniffed type contradicts its extension.
// Unknown binary or plain text content passes unless the extension promises a signature.
func checkContent(name string, detected *mimetype.MIME) error {
	ext := canonicalExtension(filepath.Ext(name))
	if ext == "" || detected == nil {
		return nil
	}

	textual := false
	for m := detected; m != nil; m = m.Parent() {
		if canonicalExtension(m.Extension()) == ext {
			return nil
		}
		for _, member := range containerExtensions[m.String()] {
			if member == ext {
				return nil
			}
		}
		if m.Is("text/plain") {
			textual = true
		}
	}

	if textual || detected.Is("application/octet-stream") {
		if _, signed := signedExtensions[ext]; !signed {
			return nil
		}
	}
	return ErrInvalidFileType
}

// applySubmit records the upload on the submission. Lateness is recomputed on every upload.
func applySubmit(a models.Assignment, s *models.Submission, file storedFile, now time.Time) {
	uploadedAt := now
	s.UploadedAt = &uploadedAt
	s.FileURL = file.URL
	s.FileName = file.Name
	s.FileSize = file.Size
	s.ContentType = file.ContentType
	s.FileChecksum = file.Checksum
	s.IsLate = window.IsLate(a, s, now)
	if s.IsLate {
		s.Status = models.SubmissionStatusLate
	} else {
		s.Status = models.SubmissionStatusSubmitted
	}
}

// isDuplicateUpload reports whether the handed-in file already has the given checksum.
func isDuplicateUpload(s *models.Submission, checksum string) bool {
	return s != nil && s.HasUpload() && s.FileChecksum != "" && s.FileChecksum == checksum
}

// checkUnsubmit decides whether the student may withdraw the handed-in file at now.
func checkUnsubmit(a models.Assignment, s models.Submission, now time.Time) error {
	if s.IsGraded() {
		return ErrCannotUnsubmitGraded
	}
	if window.EffectiveDeadline(a, &s).Passed(now) {
		return ErrDeadlinePassed
	}
	if !s.HasUpload() {
		return ErrNotSubmitted
	}
	return nil
}

// applyUnsubmit returns the submission to draft without a file.
func applyUnsubmit(s *models.Submission) {
	s.ClearUpload()
	s.Status = models.SubmissionStatusDraft
}
