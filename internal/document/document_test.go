package document

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDocumentHasRoot(t *testing.T) {
	d, err := New("my-project", "owner-1")
	require.NoError(t, err)

	root, err := d.GetNode(RootNodeID)
	require.NoError(t, err)
	require.True(t, root.IsDir)
	require.Equal(t, "", root.Path)
}

func TestCreateFolderAndFile(t *testing.T) {
	d, err := New("proj", "owner-1")
	require.NoError(t, err)

	folderID, err := d.CreateFolder(RootNodeID, "src")
	require.NoError(t, err)

	folder, err := d.GetNode(folderID)
	require.NoError(t, err)
	require.Equal(t, "src", folder.Name)
	require.Equal(t, "src", folder.Path)

	fileID, err := d.CreateFile(folderID, "main.go")
	require.NoError(t, err)

	file, err := d.GetNode(fileID)
	require.NoError(t, err)
	require.Equal(t, "src/main.go", file.Path)
	require.False(t, file.IsDir)

	info, err := d.GetFileContent(fileID)
	require.NoError(t, err)
	require.Equal(t, "go", info.Language)
	require.Equal(t, uint64(1), info.Version)
	require.Equal(t, "", info.Content)

	root, err := d.GetNode(RootNodeID)
	require.NoError(t, err)
	require.Contains(t, root.Children, folderID)
}

func TestUpdateFileContentSplice(t *testing.T) {
	d, err := New("proj", "owner-1")
	require.NoError(t, err)

	fileID, err := d.CreateFile(RootNodeID, "notes.txt")
	require.NoError(t, err)

	require.NoError(t, d.UpdateFileContent(fileID, 0, 0, "Hello World"))
	info, err := d.GetFileContent(fileID)
	require.NoError(t, err)
	require.Equal(t, "Hello World", info.Content)
	require.Equal(t, uint64(2), info.Version)

	require.NoError(t, d.UpdateFileContent(fileID, 6, 0, "Say "))
	info, err = d.GetFileContent(fileID)
	require.NoError(t, err)
	require.Equal(t, "Hello Say World", info.Content)
	require.Equal(t, uint64(3), info.Version)
}

func TestCursorStabilityAcrossInserts(t *testing.T) {
	d, err := New("proj", "owner-1")
	require.NoError(t, err)

	fileID, err := d.CreateFile(RootNodeID, "notes.txt")
	require.NoError(t, err)
	require.NoError(t, d.UpdateFileContent(fileID, 0, 0, "Hello World"))

	cursor, err := d.ResolveCursor(fileID, 6)
	require.NoError(t, err)

	require.NoError(t, d.UpdateFileContent(fileID, 0, 0, "Say "))
	info, err := d.GetFileContent(fileID)
	require.NoError(t, err)
	require.Equal(t, "Say Hello World", info.Content)

	pos, err := d.CursorPosition(fileID, cursor)
	require.NoError(t, err)
	require.Equal(t, 10, pos)
}

func TestRenameNodeUpdatesPath(t *testing.T) {
	d, err := New("proj", "owner-1")
	require.NoError(t, err)

	folderID, err := d.CreateFolder(RootNodeID, "old")
	require.NoError(t, err)
	fileID, err := d.CreateFile(folderID, "a.go")
	require.NoError(t, err)

	require.NoError(t, d.RenameNode(folderID, "new"))

	folder, err := d.GetNode(folderID)
	require.NoError(t, err)
	require.Equal(t, "new", folder.Path)

	file, err := d.GetNode(fileID)
	require.NoError(t, err)
	require.Equal(t, "new/a.go", file.Path)
}

func TestMoveNodeReparents(t *testing.T) {
	d, err := New("proj", "owner-1")
	require.NoError(t, err)

	srcID, err := d.CreateFolder(RootNodeID, "src")
	require.NoError(t, err)
	libID, err := d.CreateFolder(RootNodeID, "lib")
	require.NoError(t, err)
	fileID, err := d.CreateFile(srcID, "a.go")
	require.NoError(t, err)

	require.NoError(t, d.MoveNode(fileID, libID))

	file, err := d.GetNode(fileID)
	require.NoError(t, err)
	require.Equal(t, libID, file.Parent)
	require.Equal(t, "lib/a.go", file.Path)

	src, err := d.GetNode(srcID)
	require.NoError(t, err)
	require.NotContains(t, src.Children, fileID)

	lib, err := d.GetNode(libID)
	require.NoError(t, err)
	require.Contains(t, lib.Children, fileID)
}

func TestDeleteNodeRemovesDescendantsAtomically(t *testing.T) {
	d, err := New("proj", "owner-1")
	require.NoError(t, err)

	folderID, err := d.CreateFolder(RootNodeID, "src")
	require.NoError(t, err)
	childFolderID, err := d.CreateFolder(folderID, "nested")
	require.NoError(t, err)
	fileID, err := d.CreateFile(childFolderID, "a.go")
	require.NoError(t, err)

	require.NoError(t, d.DeleteNode(folderID))

	_, err = d.GetNode(folderID)
	require.Error(t, err)
	_, err = d.GetNode(childFolderID)
	require.Error(t, err)
	_, err = d.GetNode(fileID)
	require.Error(t, err)
	_, err = d.GetFileContent(fileID)
	require.Error(t, err)

	root, err := d.GetNode(RootNodeID)
	require.NoError(t, err)
	require.NotContains(t, root.Children, folderID)
}

func TestCreateFileRejectsBinaryExtension(t *testing.T) {
	d, err := New("proj", "owner-1")
	require.NoError(t, err)

	_, err = d.CreateFile(RootNodeID, "photo.png")
	require.ErrorIs(t, err, ErrBinaryFile)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	d, err := New("proj", "owner-1")
	require.NoError(t, err)
	_, err = d.CreateFile(RootNodeID, "a.go")
	require.NoError(t, err)

	raw := d.Save()
	loaded, err := Load(raw)
	require.NoError(t, err)

	nodes, err := loaded.GetAllNodes()
	require.NoError(t, err)
	require.Len(t, nodes, 2)
}

func TestConcurrentEditsConverge(t *testing.T) {
	base, err := New("proj", "owner-1")
	require.NoError(t, err)
	fileID, err := base.CreateFile(RootNodeID, "a.go")
	require.NoError(t, err)

	forkA, err := Load(base.Save())
	require.NoError(t, err)
	forkB, err := Load(base.Save())
	require.NoError(t, err)

	require.NoError(t, forkA.UpdateFileContent(fileID, 0, 0, "hello"))
	require.NoError(t, forkB.CreateFolder(RootNodeID, "docs"))

	require.NoError(t, forkA.Merge(forkB))
	require.NoError(t, forkB.Merge(forkA))

	nodesA, err := forkA.GetAllNodes()
	require.NoError(t, err)
	nodesB, err := forkB.GetAllNodes()
	require.NoError(t, err)
	require.Equal(t, len(nodesA), len(nodesB))

	infoA, err := forkA.GetFileContent(fileID)
	require.NoError(t, err)
	require.Equal(t, "hello", infoA.Content)
}

func TestDetectLanguage(t *testing.T) {
	require.Equal(t, "go", detectLanguage("main.go"))
	require.Equal(t, "typescriptreact", detectLanguage("App.tsx"))
	require.Equal(t, "dockerfile", detectLanguage("Dockerfile"))
	require.Equal(t, "plaintext", detectLanguage("README"))
}

func TestIsBinaryExtension(t *testing.T) {
	require.True(t, IsBinaryExtension("logo.png"))
	require.False(t, IsBinaryExtension("main.go"))
}
