package stage

import (
	"archive/tar"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
	"gotest.tools/v3/fs"
)

func sourceTree(t *testing.T) *fs.Dir {
	t.Helper()
	return fs.NewDir(t, "whisper",
		fs.WithDir("whisper.cpp",
			fs.WithFile("CMakeLists.txt", "project(whisper)\n"),
			fs.WithFile("whisper.h", "int whisper_lang_max_id(void);\n"),
			fs.WithDir("ggml", fs.WithFile("ggml.h", "struct ggml_context;\n")),
			fs.WithDir(".git", fs.WithFile("HEAD", "ref: refs/heads/master\n")),
		),
	)
}

func TestSource(t *testing.T) {
	src := sourceTree(t)
	out := t.TempDir()

	dst, err := Source(context.Background(), src.Join("whisper.cpp"), out)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "whisper.cpp"), dst)

	b, err := os.ReadFile(filepath.Join(dst, "ggml", "ggml.h"))
	require.NoError(t, err)
	assert.Equal(t, "struct ggml_context;\n", string(b))
	assert.NoDirExists(t, filepath.Join(dst, ".git"))

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary directories are left behind")
}

func TestSourceCopiesOnce(t *testing.T) {
	src := sourceTree(t)
	out := t.TempDir()

	var calls int
	s := Stager{Copy: func(_ context.Context, src, dst string) error {
		calls++
		return copyTree(src, dst)
	}}

	first, err := s.Source(context.Background(), src.Join("whisper.cpp"), out)
	require.NoError(t, err)

	// changes to the source are not picked up once staged
	require.NoError(t, os.WriteFile(src.Join("whisper.cpp", "whisper.h"), []byte("changed"), 0o644))

	second, err := s.Source(context.Background(), src.Join("whisper.cpp"), out)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	b, err := os.ReadFile(filepath.Join(second, "whisper.h"))
	require.NoError(t, err)
	assert.Equal(t, "int whisper_lang_max_id(void);\n", string(b))
}

func TestSourceFailedCopyLeavesNothing(t *testing.T) {
	src := sourceTree(t)
	out := t.TempDir()

	boom := errors.New("disk full")
	s := Stager{Copy: func(_ context.Context, _, dst string) error {
		require.NoError(t, os.MkdirAll(filepath.Join(dst, "partial"), 0o755))
		return boom
	}}

	_, err := s.Source(context.Background(), src.Join("whisper.cpp"), out)
	require.ErrorIs(t, err, boom)

	var stageErr *Error
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "copy", stageErr.Op)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// a later attempt starts over
	var calls int
	s.Copy = func(_ context.Context, src, dst string) error {
		calls++
		return copyTree(src, dst)
	}
	_, err = s.Source(context.Background(), src.Join("whisper.cpp"), out)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestSourceErrors(t *testing.T) {
	out := t.TempDir()

	_, err := Source(context.Background(), filepath.Join(out, "missing"), filepath.Join(out, "build"))
	var stageErr *Error
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "open", stageErr.Op)
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.WriteFile(filepath.Join(out, "whisper.cpp"), nil, 0o644))
	_, err = Source(context.Background(), "/anything/whisper.cpp", out)
	assert.ErrorIs(t, err, ErrDestinationExists)
}

func writeArchive(t *testing.T, path string, files map[string]string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	xw, err := xz.NewWriter(f)
	require.NoError(t, err)

	tw := tar.NewWriter(xw)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "whisper.cpp-1.5.4/", Typeflag: tar.TypeDir, Mode: 0o755}))
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     "whisper.cpp-1.5.4/" + name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, xw.Close())
}

func TestSourceArchive(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "whisper.cpp.tar.xz")
	writeArchive(t, archive, map[string]string{
		"CMakeLists.txt":    "project(whisper)\n",
		"include/whisper.h": "#pragma once\n",
	})

	out := filepath.Join(dir, "out")
	dst, err := Source(context.Background(), archive, out)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "whisper.cpp"), dst)

	b, err := os.ReadFile(filepath.Join(dst, "include", "whisper.h"))
	require.NoError(t, err)
	assert.Equal(t, "#pragma once\n", string(b))
	assert.FileExists(t, filepath.Join(dst, "CMakeLists.txt"))

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

type entry struct {
	name, link, content string
}

// writeEntries writes an archive whose entries keep their order.
func writeEntries(t *testing.T, path string, entries []entry) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	xw, err := xz.NewWriter(f)
	require.NoError(t, err)

	tw := tar.NewWriter(xw)
	for _, e := range entries {
		if e.link != "" {
			require.NoError(t, tw.WriteHeader(&tar.Header{Name: e.name, Linkname: e.link, Typeflag: tar.TypeSymlink, Mode: 0o777}))
			continue
		}
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: e.name, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(e.content))}))
		_, err := tw.Write([]byte(e.content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, xw.Close())
}

func TestSourceArchiveSymlinkEscape(t *testing.T) {
	cases := map[string]func(outside string) string{
		"absolute": func(outside string) string { return outside },
		"relative": func(string) string { return "../../outside" },
	}

	for name, link := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			outside := filepath.Join(dir, "outside")
			require.NoError(t, os.MkdirAll(outside, 0o755))

			archive := filepath.Join(dir, "whisper.cpp.tar.xz")
			writeEntries(t, archive, []entry{
				{name: "src/CMakeLists.txt", content: "project(whisper)\n"},
				{name: "src/esc", link: link(outside)},
				{name: "src/esc/evil.txt", content: "pwned"},
			})

			out := filepath.Join(dir, "out")
			_, err := Source(context.Background(), archive, out)
			require.Error(t, err)
			assert.ErrorContains(t, err, "escapes the destination")

			assert.NoFileExists(t, filepath.Join(outside, "evil.txt"))
			assert.NoDirExists(t, filepath.Join(out, "whisper.cpp"))
		})
	}
}

func TestSourceArchiveInternalSymlink(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "whisper.cpp.tar.xz")
	writeEntries(t, archive, []entry{
		{name: "src/include/whisper.h", content: "#pragma once\n"},
		{name: "src/headers", link: "include"},
		{name: "src/headers/ggml.h", content: "struct ggml_context;\n"},
	})

	dst, err := Source(context.Background(), archive, filepath.Join(dir, "out"))
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(dst, "include", "ggml.h"))
	require.NoError(t, err)
	assert.Equal(t, "struct ggml_context;\n", string(b))
}

func TestName(t *testing.T) {
	assert.Equal(t, "whisper.cpp", Name("./whisper.cpp/"))
	assert.Equal(t, "whisper.cpp", Name("/dl/whisper.cpp.tar.xz"))
	assert.Equal(t, "src", Name("src.txz"))
}

func TestClean(t *testing.T) {
	src := sourceTree(t)
	out := t.TempDir()

	dst, err := Source(context.Background(), src.Join("whisper.cpp"), out)
	require.NoError(t, err)
	require.NoError(t, Clean(src.Join("whisper.cpp"), out))
	assert.NoDirExists(t, dst)

	// cleaning twice is fine
	require.NoError(t, Clean(src.Join("whisper.cpp"), out))
}
