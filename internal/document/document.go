// Package document wraps an Automerge CRDT document with the movable-tree
// file/folder shape and text-splice editing operations the sync protocol
// needs, without exposing the underlying CRDT API to callers.
package document

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// keys used for top-level and per-node map properties.
const (
	keyFileTree    = "file_tree"
	keyFiles       = "files"
	keyCursors     = "cursors"
	keyChat        = "chat"
	keyMetadata    = "metadata"
	keyName        = "name"
	keyPath        = "path"
	keyIsDir       = "is_dir"
	keyChildren    = "children"
	keyParent      = "parent"
	keyCreatedAt   = "created_at"
	keyUpdatedAt   = "updated_at"
	keyContent     = "content"
	keyLanguage    = "language"
	keyVersion     = "version"
	keyProjectName = "project_name"
	keyOwnerID     = "owner_id"
	keyRootID      = "root_id"
)

// RootNodeID is the stable identifier of the synthetic root folder every
// project document is initialized with.
const RootNodeID = "root"

// ErrNotFound is returned when a node or file lookup misses.
var ErrNotFound = errors.New("document: not found")

// ErrNotAFile is returned when a file-content operation targets a folder node.
var ErrNotAFile = errors.New("document: not a file")

// ErrBinaryFile is returned when content is rejected from the text CRDT path.
var ErrBinaryFile = errors.New("document: binary file rejected")

// Node is a read-only view of one file-tree entry.
type Node struct {
	ID        string
	Name      string
	Path      string
	IsDir     bool
	Parent    string
	Children  []string
	CreatedAt int64
	UpdatedAt int64
}

// FileInfo is a read-only view of a file's content metadata.
type FileInfo struct {
	Content  string
	Language string
	Version  uint64
}

// Document is the CRDT-backed project document: a file tree plus per-file
// text content, wrapped around automerge.Doc.
type Document struct {
	doc *automerge.Doc
}

// New creates a fresh document with an initialized root folder and metadata.
func New(projectName, ownerID string) (*Document, error) {
	doc := automerge.New()
	d := &Document{doc: doc}
	if err := d.initStructure(projectName, ownerID); err != nil {
		return nil, errors.Wrap(err, "document: init structure")
	}
	if _, err := doc.Commit("init", automerge.CommitOptions{AllowEmpty: true}); err != nil {
		return nil, errors.Wrap(err, "document: initial commit")
	}
	return d, nil
}

// Load reconstructs a Document from a previously saved Automerge byte stream.
func Load(raw []byte) (*Document, error) {
	doc, err := automerge.Load(raw)
	if err != nil {
		return nil, errors.Wrap(err, "document: load")
	}
	return &Document{doc: doc}, nil
}

func (d *Document) initStructure(projectName, ownerID string) error {
	tree := d.doc.Path(keyFileTree).Map()
	now := nowMillis()
	if err := tree.Set(keyRootID, RootNodeID); err != nil {
		return err
	}

	nodes := d.doc.Path(keyFileTree, "nodes").Map()
	if err := nodes.Set(RootNodeID, map[string]interface{}{}); err != nil {
		return err
	}
	rootMap := d.doc.Path(keyFileTree, "nodes", RootNodeID).Map()
	if err := rootMap.Set(keyName, ""); err != nil {
		return err
	}
	if err := rootMap.Set(keyPath, ""); err != nil {
		return err
	}
	if err := rootMap.Set(keyIsDir, true); err != nil {
		return err
	}
	if err := rootMap.Set(keyParent, ""); err != nil {
		return err
	}
	if err := d.doc.Path(keyFileTree, "nodes", RootNodeID, keyChildren).Set([]interface{}{}); err != nil {
		return err
	}
	if err := rootMap.Set(keyCreatedAt, now); err != nil {
		return err
	}
	if err := rootMap.Set(keyUpdatedAt, now); err != nil {
		return err
	}

	d.doc.Path(keyFiles).Map()
	d.doc.Path(keyCursors).Map()
	d.doc.Path(keyChat).List()

	meta := d.doc.Path(keyMetadata).Map()
	if err := meta.Set(keyProjectName, projectName); err != nil {
		return err
	}
	if err := meta.Set(keyOwnerID, ownerID); err != nil {
		return err
	}
	if err := meta.Set(keyCreatedAt, now); err != nil {
		return err
	}
	return nil
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// Save serializes the current document state, suitable for persistence.
func (d *Document) Save() []byte { return d.doc.Save() }

// Heads returns the document's current change-set frontier.
func (d *Document) Heads() []automerge.ChangeHash { return d.doc.Heads() }

// Fork returns an independent copy of the document, optionally checked out
// at an earlier set of heads (used by the admin change-graph renderer).
func (d *Document) Fork(heads ...automerge.ChangeHash) (*Document, error) {
	fork, err := d.doc.Fork(heads...)
	if err != nil {
		return nil, errors.Wrap(err, "document: fork")
	}
	return &Document{doc: fork}, nil
}

// Changes returns the full change history, oldest first.
func (d *Document) Changes() ([]*automerge.Change, error) {
	changes, err := d.doc.Changes()
	if err != nil {
		return nil, errors.Wrap(err, "document: changes")
	}
	return changes, nil
}

// Automerge exposes the underlying doc for sync-state plumbing in the room
// and connection layers, which must share the exact *automerge.Doc instance
// a SyncState was built against.
func (d *Document) Automerge() *automerge.Doc { return d.doc }

// nodeMap returns the per-node map for id, or ErrNotFound.
func (d *Document) nodeMap(id string) (*automerge.Map, error) {
	v, err := d.doc.Path(keyFileTree, "nodes", id).Get()
	if err != nil {
		return nil, errors.Wrapf(ErrNotFound, "node %s: %v", id, err)
	}
	if v.Kind() == automerge.KindVoid {
		return nil, errors.Wrapf(ErrNotFound, "node %s", id)
	}
	return d.doc.Path(keyFileTree, "nodes", id).Map(), nil
}

func getString(m *automerge.Map, key string) (string, error) {
	v, err := m.Get(key)
	if err != nil {
		return "", err
	}
	return v.Str(), nil
}

func getBool(m *automerge.Map, key string) (bool, error) {
	v, err := m.Get(key)
	if err != nil {
		return false, err
	}
	return v.Bool(), nil
}

func getInt64(m *automerge.Map, key string) (int64, error) {
	v, err := m.Get(key)
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}

// GetNode reads one file-tree node by id.
func (d *Document) GetNode(id string) (Node, error) {
	m, err := d.nodeMap(id)
	if err != nil {
		return Node{}, err
	}
	var n Node
	n.ID = id
	if n.Name, err = getString(m, keyName); err != nil {
		return Node{}, err
	}
	if n.Path, err = getString(m, keyPath); err != nil {
		return Node{}, err
	}
	if n.IsDir, err = getBool(m, keyIsDir); err != nil {
		return Node{}, err
	}
	if n.Parent, err = getString(m, keyParent); err != nil {
		return Node{}, err
	}
	if n.CreatedAt, err = getInt64(m, keyCreatedAt); err != nil {
		return Node{}, err
	}
	if n.UpdatedAt, err = getInt64(m, keyUpdatedAt); err != nil {
		return Node{}, err
	}
	children := d.doc.Path(keyFileTree, "nodes", id, keyChildren).List()
	n.Children, err = stringList(children)
	if err != nil {
		return Node{}, err
	}
	return n, nil
}

func stringList(l *automerge.List) ([]string, error) {
	length := l.Len()
	out := make([]string, 0, length)
	for i := 0; i < length; i++ {
		v, err := l.Get(i)
		if err != nil {
			return nil, err
		}
		out = append(out, v.Str())
	}
	return out, nil
}

// GetAllNodes returns every node in the tree, in no particular order.
func (d *Document) GetAllNodes() ([]Node, error) {
	nodes := d.doc.Path(keyFileTree, "nodes").Map()
	keys, err := nodes.Keys()
	if err != nil {
		return nil, err
	}
	out := make([]Node, 0, len(keys))
	for _, id := range keys {
		n, err := d.GetNode(id)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (d *Document) appendChild(parentID, childID string) error {
	children := d.doc.Path(keyFileTree, "nodes", parentID, keyChildren).List()
	return children.Append(childID)
}

func (d *Document) removeChild(parentID, childID string) error {
	children := d.doc.Path(keyFileTree, "nodes", parentID, keyChildren).List()
	ids, err := stringList(children)
	if err != nil {
		return err
	}
	for i, id := range ids {
		if id == childID {
			return children.Delete(i)
		}
	}
	return nil
}

func detectLanguage(filePath string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filePath), "."))
	base := strings.ToLower(path.Base(filePath))
	if base == "dockerfile" {
		return "dockerfile"
	}
	if base == "makefile" {
		return "makefile"
	}
	lang, ok := languageByExtension[ext]
	if !ok {
		return "plaintext"
	}
	return lang
}

// IsBinaryExtension reports whether filePath's extension is a known binary
// kind that must never be pushed through the Text CRDT path.
func IsBinaryExtension(filePath string) bool {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filePath), "."))
	return binaryExtensions[ext]
}

func newNodeID() string { return uuid.NewString() }

func parentDir(p string) string {
	dir := path.Dir(p)
	if dir == "." {
		return ""
	}
	return dir
}

// CreateFolder adds a new empty folder node under parentID.
func (d *Document) CreateFolder(parentID, name string) (string, error) {
	parent, err := d.GetNode(parentID)
	if err != nil {
		return "", err
	}
	id := newNodeID()
	now := nowMillis()
	fullPath := path.Join(parent.Path, name)

	if err := d.doc.Path(keyFileTree, "nodes", id).Set(map[string]interface{}{}); err != nil {
		return "", err
	}
	m, err := d.nodeMap(id)
	if err != nil {
		return "", err
	}
	if err := m.Set(keyName, name); err != nil {
		return "", err
	}
	if err := m.Set(keyPath, fullPath); err != nil {
		return "", err
	}
	if err := m.Set(keyIsDir, true); err != nil {
		return "", err
	}
	if err := m.Set(keyParent, parentID); err != nil {
		return "", err
	}
	if err := m.Set(keyCreatedAt, now); err != nil {
		return "", err
	}
	if err := m.Set(keyUpdatedAt, now); err != nil {
		return "", err
	}
	if err := d.doc.Path(keyFileTree, "nodes", id, keyChildren).Set([]interface{}{}); err != nil {
		return "", err
	}
	if err := d.appendChild(parentID, id); err != nil {
		return "", err
	}
	if err := d.touchNode(parentID); err != nil {
		return "", err
	}
	if _, err := d.doc.Commit(fmt.Sprintf("create folder %s", fullPath)); err != nil {
		return "", err
	}
	return id, nil
}

// CreateFile adds a new file node with empty text content under parentID.
func (d *Document) CreateFile(parentID, name string) (string, error) {
	if IsBinaryExtension(name) {
		return "", errors.Wrapf(ErrBinaryFile, "file %s", name)
	}
	parent, err := d.GetNode(parentID)
	if err != nil {
		return "", err
	}
	id := newNodeID()
	now := nowMillis()
	fullPath := path.Join(parent.Path, name)

	if err := d.doc.Path(keyFileTree, "nodes", id).Set(map[string]interface{}{}); err != nil {
		return "", err
	}
	m, err := d.nodeMap(id)
	if err != nil {
		return "", err
	}
	if err := m.Set(keyName, name); err != nil {
		return "", err
	}
	if err := m.Set(keyPath, fullPath); err != nil {
		return "", err
	}
	if err := m.Set(keyIsDir, false); err != nil {
		return "", err
	}
	if err := m.Set(keyParent, parentID); err != nil {
		return "", err
	}
	if err := m.Set(keyCreatedAt, now); err != nil {
		return "", err
	}
	if err := m.Set(keyUpdatedAt, now); err != nil {
		return "", err
	}
	if err := d.doc.Path(keyFileTree, "nodes", id, keyChildren).Set([]interface{}{}); err != nil {
		return "", err
	}

	if err := d.doc.Path(keyFiles, id).Set(map[string]interface{}{}); err != nil {
		return "", err
	}
	fileMap := d.doc.Path(keyFiles, id).Map()
	d.doc.Path(keyFiles, id, keyContent).Text()
	if err := fileMap.Set(keyLanguage, detectLanguage(name)); err != nil {
		return "", err
	}
	if err := fileMap.Set(keyVersion, uint64(1)); err != nil {
		return "", err
	}

	if err := d.appendChild(parentID, id); err != nil {
		return "", err
	}
	if err := d.touchNode(parentID); err != nil {
		return "", err
	}
	if _, err := d.doc.Commit(fmt.Sprintf("create file %s", fullPath)); err != nil {
		return "", err
	}
	return id, nil
}

func (d *Document) touchNode(id string) error {
	m, err := d.nodeMap(id)
	if err != nil {
		return err
	}
	return m.Set(keyUpdatedAt, nowMillis())
}

// RenameNode changes a node's name (and its own + descendants' paths).
func (d *Document) RenameNode(id, newName string) error {
	node, err := d.GetNode(id)
	if err != nil {
		return err
	}
	newPath := path.Join(parentDir(node.Path), newName)
	if err := d.setPathRecursive(id, newPath); err != nil {
		return err
	}
	m, err := d.nodeMap(id)
	if err != nil {
		return err
	}
	if err := m.Set(keyName, newName); err != nil {
		return err
	}
	if err := d.touchNode(id); err != nil {
		return err
	}
	_, err = d.doc.Commit(fmt.Sprintf("rename %s -> %s", node.Path, newPath))
	return err
}

func (d *Document) setPathRecursive(id, newPath string) error {
	m, err := d.nodeMap(id)
	if err != nil {
		return err
	}
	if err := m.Set(keyPath, newPath); err != nil {
		return err
	}
	node, err := d.GetNode(id)
	if err != nil {
		return err
	}
	for _, childID := range node.Children {
		child, err := d.GetNode(childID)
		if err != nil {
			return err
		}
		if err := d.setPathRecursive(childID, path.Join(newPath, child.Name)); err != nil {
			return err
		}
	}
	return nil
}

// MoveNode reparents id under newParentID, reassigning its path and every
// descendant's path.
func (d *Document) MoveNode(id, newParentID string) error {
	if id == RootNodeID {
		return errors.New("document: cannot move root")
	}
	node, err := d.GetNode(id)
	if err != nil {
		return err
	}
	newParent, err := d.GetNode(newParentID)
	if err != nil {
		return err
	}
	if err := d.removeChild(node.Parent, id); err != nil {
		return err
	}
	m, err := d.nodeMap(id)
	if err != nil {
		return err
	}
	if err := m.Set(keyParent, newParentID); err != nil {
		return err
	}
	newPath := path.Join(newParent.Path, node.Name)
	if err := d.setPathRecursive(id, newPath); err != nil {
		return err
	}
	if err := d.appendChild(newParentID, id); err != nil {
		return err
	}
	if err := d.touchNode(newParentID); err != nil {
		return err
	}
	_, err = d.doc.Commit(fmt.Sprintf("move %s -> %s", node.Path, newPath))
	return err
}

// DeleteNode removes id and, atomically, every descendant, along with any
// file content objects they owned.
func (d *Document) DeleteNode(id string) error {
	if id == RootNodeID {
		return errors.New("document: cannot delete root")
	}
	node, err := d.GetNode(id)
	if err != nil {
		return err
	}
	if err := d.removeChild(node.Parent, id); err != nil {
		return err
	}
	if err := d.deleteSubtree(id); err != nil {
		return err
	}
	_, err = d.doc.Commit(fmt.Sprintf("delete %s", node.Path))
	return err
}

func (d *Document) deleteSubtree(id string) error {
	node, err := d.GetNode(id)
	if err != nil {
		return err
	}
	for _, childID := range node.Children {
		if err := d.deleteSubtree(childID); err != nil {
			return err
		}
	}
	if !node.IsDir {
		files := d.doc.Path(keyFiles).Map()
		if err := files.Delete(id); err != nil {
			return err
		}
	}
	nodes := d.doc.Path(keyFileTree, "nodes").Map()
	return nodes.Delete(id)
}

// GetFileContent reads a file's current text content, language, and version.
func (d *Document) GetFileContent(id string) (FileInfo, error) {
	node, err := d.GetNode(id)
	if err != nil {
		return FileInfo{}, err
	}
	if node.IsDir {
		return FileInfo{}, errors.Wrapf(ErrNotAFile, "node %s", id)
	}
	fileMap := d.doc.Path(keyFiles, id).Map()
	text := d.doc.Path(keyFiles, id, keyContent).Text()
	content, err := text.Get()
	if err != nil {
		return FileInfo{}, err
	}
	language, err := getString(fileMap, keyLanguage)
	if err != nil {
		return FileInfo{}, err
	}
	v, err := fileMap.Get(keyVersion)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{Content: content, Language: language, Version: v.Uint64()}, nil
}

// UpdateFileContent applies a (position, deleteCount, insertText) splice
// against a file's Text CRDT object and bumps its version counter.
func (d *Document) UpdateFileContent(id string, position, deleteCount int, insertText string) error {
	node, err := d.GetNode(id)
	if err != nil {
		return err
	}
	if node.IsDir {
		return errors.Wrapf(ErrNotAFile, "node %s", id)
	}
	text := d.doc.Path(keyFiles, id, keyContent).Text()
	if err := text.Splice(position, deleteCount, insertText); err != nil {
		return errors.Wrap(err, "document: splice")
	}
	if err := d.bumpVersion(id); err != nil {
		return err
	}
	if err := d.touchNode(id); err != nil {
		return err
	}
	_, err = d.doc.Commit(fmt.Sprintf("edit %s", node.Path))
	return err
}

// SetFileContent fully replaces a file's content with newContent.
func (d *Document) SetFileContent(id, newContent string) error {
	info, err := d.GetFileContent(id)
	if err != nil {
		return err
	}
	return d.UpdateFileContent(id, 0, len([]rune(info.Content)), newContent)
}

func (d *Document) bumpVersion(id string) error {
	fileMap := d.doc.Path(keyFiles, id).Map()
	v, err := fileMap.Get(keyVersion)
	if err != nil {
		return err
	}
	return fileMap.Set(keyVersion, v.Uint64()+1)
}

// Cursor holds the opaque token of a stable cursor within a file's Text
// object. With the vendored automerge-go binding no such token is ever
// produced (see ErrCursorUnsupported), so a Cursor is always empty unless
// built by CursorFromBytes.
type Cursor struct {
	token []byte
}

// ErrCursorUnsupported is returned by ResolveCursor and CursorPosition
// because the vendored automerge-go binding does not expose the underlying
// library's stable cursor API (no *Text.Cursor / *Text.CursorPosition).
var ErrCursorUnsupported = errors.New("document: stable cursors unsupported by automerge-go binding")

// ResolveCursor always returns an empty Cursor and ErrCursorUnsupported; it
// does not anchor a cursor in the file's content.
func (d *Document) ResolveCursor(fileID string, position int) (Cursor, error) {
	return Cursor{}, ErrCursorUnsupported
}

// CursorPosition always returns 0 and ErrCursorUnsupported; it does not map
// a cursor back to an offset in the live document.
func (d *Document) CursorPosition(fileID string, c Cursor) (int, error) {
	return 0, ErrCursorUnsupported
}

// Bytes exposes the opaque wire representation of a stable cursor.
func (c Cursor) Bytes() []byte { return c.token }

// CursorFromBytes reconstructs a Cursor from its wire representation.
func CursorFromBytes(b []byte) Cursor { return Cursor{token: b} }

// Merge applies another document's changes since a divergence point into d,
// converging both replicas.
func (d *Document) Merge(other *Document) error {
	changes, err := other.doc.Changes()
	if err != nil {
		return err
	}
	if err := d.doc.Apply(changes...); err != nil {
		return errors.Wrap(err, "document: merge")
	}
	return nil
}
