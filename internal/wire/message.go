package wire

import "github.com/pkg/errors"

// Client message tags (§6.2).
const (
	TagHello uint8 = iota
	TagGoodbye
	TagJoinProject
	TagLeaveProject
	TagSyncMessage
	TagSyncRequest
	TagOpenFile
	TagCloseFile
	TagCursorUpdate
	TagPresenceUpdate
	TagChatMessage
	TagVoiceJoin
	TagVoiceLeave
	TagPing
)

// Server message tags (§6.2).
const (
	TagWelcome uint8 = iota
	TagError
	TagSvrGoodbye
	TagProjectJoined
	TagPeerJoined
	TagProjectLeft
	TagPeerLeft
	TagSvrSyncMessage
	TagSyncComplete
	TagFileContent
	TagFileNotFound
	TagCursorBroadcast
	TagPresenceBroadcast
	TagChatBroadcast
	TagChatHistory
	TagVoiceToken
	TagPong
	TagStats
)

// Position is an optional selection endpoint carried by cursor messages.
type Position struct {
	Line   uint32
	Column uint32
}

// PeerInfo describes one peer as seen by another peer.
type PeerInfo struct {
	PeerID     string
	Name       string
	Color      string
	Status     PresenceStatus
	ActiveFile *string
	JoinedAt   int64
}

// ChatHistoryItem is one entry in a room's retained chat ring.
type ChatHistoryItem struct {
	PeerID    string
	PeerName  string
	Content   string
	Timestamp int64
}

// ClientMessage is the sealed union of messages a client may send.
type ClientMessage interface {
	clientTag() uint8
}

type ClientHello struct {
	ProtocolVersion uint8
	ClientID        *string
	ClientName      string
	SessionToken    *string
}

type ClientGoodbye struct {
	Reason *string
}

type ClientJoinProject struct {
	ProjectID     string
	RequestState  bool
}

type ClientLeaveProject struct {
	ProjectID string
}

type ClientSyncMessage struct {
	ProjectID string
	SyncData  []byte
}

type ClientSyncRequest struct {
	ProjectID string
}

type ClientOpenFile struct {
	ProjectID string
	FilePath  string
}

type ClientCloseFile struct {
	ProjectID string
	FilePath  string
}

type ClientCursorUpdate struct {
	ProjectID     string
	FilePath      string
	Line          uint32
	Column        uint32
	SelectionEnd  *Position
}

type ClientPresenceUpdate struct {
	ProjectID  string
	Status     PresenceStatus
	ActiveFile *string
}

type ClientChatMessage struct {
	ProjectID string
	Content   string
}

type ClientVoiceJoin struct {
	ProjectID string
}

type ClientVoiceLeave struct {
	ProjectID string
}

type ClientPing struct {
	Timestamp uint64
}

func (ClientHello) clientTag() uint8         { return TagHello }
func (ClientGoodbye) clientTag() uint8       { return TagGoodbye }
func (ClientJoinProject) clientTag() uint8   { return TagJoinProject }
func (ClientLeaveProject) clientTag() uint8  { return TagLeaveProject }
func (ClientSyncMessage) clientTag() uint8   { return TagSyncMessage }
func (ClientSyncRequest) clientTag() uint8   { return TagSyncRequest }
func (ClientOpenFile) clientTag() uint8      { return TagOpenFile }
func (ClientCloseFile) clientTag() uint8     { return TagCloseFile }
func (ClientCursorUpdate) clientTag() uint8  { return TagCursorUpdate }
func (ClientPresenceUpdate) clientTag() uint8 { return TagPresenceUpdate }
func (ClientChatMessage) clientTag() uint8   { return TagChatMessage }
func (ClientVoiceJoin) clientTag() uint8     { return TagVoiceJoin }
func (ClientVoiceLeave) clientTag() uint8    { return TagVoiceLeave }
func (ClientPing) clientTag() uint8          { return TagPing }

// ServerMessage is the sealed union of messages the server may send.
type ServerMessage interface {
	serverTag() uint8
}

type ServerWelcome struct {
	ProtocolVersion uint8
	PeerID          string
	Color           string
	SessionToken    string
	ServerTime      int64
}

type ServerError struct {
	Code      ErrorCode
	Message   string
	ProjectID *string
}

type ServerGoodbye struct {
	Reason *string
}

type ServerProjectJoined struct {
	ProjectID      string
	Peers          []PeerInfo
	DocumentState  []byte // nil means absent
}

type ServerPeerJoined struct {
	ProjectID string
	Peer      PeerInfo
}

type ServerProjectLeft struct {
	ProjectID string
}

type ServerPeerLeft struct {
	ProjectID string
	PeerID    string
	Reason    *string
}

type ServerSyncMessage struct {
	ProjectID string
	SyncData  []byte
	FromPeer  *string
}

type ServerSyncComplete struct {
	ProjectID string
}

type ServerFileContent struct {
	ProjectID string
	FilePath  string
	Content   string
	Language  string
	Version   uint64
}

type ServerFileNotFound struct {
	ProjectID string
	FilePath  string
}

type ServerCursorBroadcast struct {
	ProjectID    string
	PeerID       string
	PeerName     string
	PeerColor    string
	FilePath     string
	Line         uint32
	Column       uint32
	SelectionEnd *Position
}

type ServerPresenceBroadcast struct {
	ProjectID  string
	PeerID     string
	PeerName   string
	Status     PresenceStatus
	ActiveFile *string
	LastActive int64
}

type ServerChatBroadcast struct {
	ProjectID string
	PeerID    string
	PeerName  string
	Content   string
	Timestamp int64
}

type ServerChatHistory struct {
	ProjectID string
	Messages  []ChatHistoryItem
}

type ServerVoiceToken struct {
	ProjectID string
	Token     string
	RoomName  string
	ServerURL string
}

type ServerPong struct {
	Timestamp  uint64
	ServerTime int64
}

type ServerStats struct {
	ActiveProjects uint32
	ActivePeers    uint32
	UptimeSeconds  uint64
}

func (ServerWelcome) serverTag() uint8          { return TagWelcome }
func (ServerError) serverTag() uint8            { return TagError }
func (ServerGoodbye) serverTag() uint8          { return TagSvrGoodbye }
func (ServerProjectJoined) serverTag() uint8    { return TagProjectJoined }
func (ServerPeerJoined) serverTag() uint8       { return TagPeerJoined }
func (ServerProjectLeft) serverTag() uint8      { return TagProjectLeft }
func (ServerPeerLeft) serverTag() uint8         { return TagPeerLeft }
func (ServerSyncMessage) serverTag() uint8      { return TagSvrSyncMessage }
func (ServerSyncComplete) serverTag() uint8     { return TagSyncComplete }
func (ServerFileContent) serverTag() uint8      { return TagFileContent }
func (ServerFileNotFound) serverTag() uint8     { return TagFileNotFound }
func (ServerCursorBroadcast) serverTag() uint8  { return TagCursorBroadcast }
func (ServerPresenceBroadcast) serverTag() uint8 { return TagPresenceBroadcast }
func (ServerChatBroadcast) serverTag() uint8    { return TagChatBroadcast }
func (ServerChatHistory) serverTag() uint8      { return TagChatHistory }
func (ServerVoiceToken) serverTag() uint8       { return TagVoiceToken }
func (ServerPong) serverTag() uint8             { return TagPong }
func (ServerStats) serverTag() uint8            { return TagStats }

func writeOptPosition(e *encoder, p *Position) {
	e.optBool(p != nil, func() {
		e.u32(p.Line)
		e.u32(p.Column)
	})
}

func readOptPosition(d *decoder) (*Position, error) {
	present, err := d.boolean()
	if err != nil || !present {
		return nil, err
	}
	line, err := d.u32()
	if err != nil {
		return nil, err
	}
	col, err := d.u32()
	if err != nil {
		return nil, err
	}
	return &Position{Line: line, Column: col}, nil
}

func writePeerInfo(e *encoder, p PeerInfo) {
	e.str(p.PeerID)
	e.str(p.Name)
	e.str(p.Color)
	e.u8(uint8(p.Status))
	e.optStr(p.ActiveFile)
	e.i64(p.JoinedAt)
}

func readPeerInfo(d *decoder) (PeerInfo, error) {
	var p PeerInfo
	var err error
	if p.PeerID, err = d.str(); err != nil {
		return p, err
	}
	if p.Name, err = d.str(); err != nil {
		return p, err
	}
	if p.Color, err = d.str(); err != nil {
		return p, err
	}
	status, err := d.u8()
	if err != nil {
		return p, err
	}
	p.Status = PresenceStatus(status)
	if p.ActiveFile, err = d.optStr(); err != nil {
		return p, err
	}
	if p.JoinedAt, err = d.i64(); err != nil {
		return p, err
	}
	return p, nil
}

// EncodeClient serializes a ClientMessage payload (without the frame header).
func EncodeClient(msg ClientMessage) ([]byte, error) {
	e := newEncoder()
	e.u32(uint32(msg.clientTag()))

	switch m := msg.(type) {
	case ClientHello:
		e.u8(m.ProtocolVersion)
		e.optStr(m.ClientID)
		e.str(m.ClientName)
		e.optStr(m.SessionToken)
	case ClientGoodbye:
		e.optStr(m.Reason)
	case ClientJoinProject:
		e.str(m.ProjectID)
		e.boolean(m.RequestState)
	case ClientLeaveProject:
		e.str(m.ProjectID)
	case ClientSyncMessage:
		e.str(m.ProjectID)
		e.bytesField(m.SyncData)
	case ClientSyncRequest:
		e.str(m.ProjectID)
	case ClientOpenFile:
		e.str(m.ProjectID)
		e.str(m.FilePath)
	case ClientCloseFile:
		e.str(m.ProjectID)
		e.str(m.FilePath)
	case ClientCursorUpdate:
		e.str(m.ProjectID)
		e.str(m.FilePath)
		e.u32(m.Line)
		e.u32(m.Column)
		writeOptPosition(e, m.SelectionEnd)
	case ClientPresenceUpdate:
		e.str(m.ProjectID)
		e.u8(uint8(m.Status))
		e.optStr(m.ActiveFile)
	case ClientChatMessage:
		e.str(m.ProjectID)
		e.str(m.Content)
	case ClientVoiceJoin:
		e.str(m.ProjectID)
	case ClientVoiceLeave:
		e.str(m.ProjectID)
	case ClientPing:
		e.u64(m.Timestamp)
	default:
		return nil, errors.Errorf("wire: unencodable client message %T", msg)
	}

	return e.Bytes(), nil
}

// DecodeClient parses a ClientMessage payload. Unknown tags fail ErrInvalidMessage.
func DecodeClient(payload []byte) (ClientMessage, error) {
	d := newDecoder(payload)
	tag32, err := d.u32()
	if err != nil {
		return nil, err
	}
	if tag32 > 0xff {
		return nil, errors.Wrapf(ErrInvalidMessage, "tag %d out of range", tag32)
	}
	tag := uint8(tag32)

	var msg ClientMessage
	switch tag {
	case TagHello:
		var m ClientHello
		if m.ProtocolVersion, err = d.u8(); err != nil {
			return nil, err
		}
		if m.ClientID, err = d.optStr(); err != nil {
			return nil, err
		}
		if m.ClientName, err = d.str(); err != nil {
			return nil, err
		}
		if m.SessionToken, err = d.optStr(); err != nil {
			return nil, err
		}
		msg = m
	case TagGoodbye:
		var m ClientGoodbye
		if m.Reason, err = d.optStr(); err != nil {
			return nil, err
		}
		msg = m
	case TagJoinProject:
		var m ClientJoinProject
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		if m.RequestState, err = d.boolean(); err != nil {
			return nil, err
		}
		msg = m
	case TagLeaveProject:
		var m ClientLeaveProject
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		msg = m
	case TagSyncMessage:
		var m ClientSyncMessage
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		if m.SyncData, err = d.bytesField(); err != nil {
			return nil, err
		}
		msg = m
	case TagSyncRequest:
		var m ClientSyncRequest
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		msg = m
	case TagOpenFile:
		var m ClientOpenFile
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		if m.FilePath, err = d.str(); err != nil {
			return nil, err
		}
		msg = m
	case TagCloseFile:
		var m ClientCloseFile
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		if m.FilePath, err = d.str(); err != nil {
			return nil, err
		}
		msg = m
	case TagCursorUpdate:
		var m ClientCursorUpdate
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		if m.FilePath, err = d.str(); err != nil {
			return nil, err
		}
		if m.Line, err = d.u32(); err != nil {
			return nil, err
		}
		if m.Column, err = d.u32(); err != nil {
			return nil, err
		}
		if m.SelectionEnd, err = readOptPosition(d); err != nil {
			return nil, err
		}
		msg = m
	case TagPresenceUpdate:
		var m ClientPresenceUpdate
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		status, err2 := d.u8()
		if err2 != nil {
			return nil, err2
		}
		m.Status = PresenceStatus(status)
		if m.ActiveFile, err = d.optStr(); err != nil {
			return nil, err
		}
		msg = m
	case TagChatMessage:
		var m ClientChatMessage
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		if m.Content, err = d.str(); err != nil {
			return nil, err
		}
		msg = m
	case TagVoiceJoin:
		var m ClientVoiceJoin
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		msg = m
	case TagVoiceLeave:
		var m ClientVoiceLeave
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		msg = m
	case TagPing:
		var m ClientPing
		if m.Timestamp, err = d.u64(); err != nil {
			return nil, err
		}
		msg = m
	default:
		return nil, errors.Wrapf(ErrInvalidMessage, "unknown client tag %d", tag)
	}

	if err := d.done(); err != nil {
		return nil, err
	}
	return msg, nil
}

// EncodeServer serializes a ServerMessage payload (without the frame header).
func EncodeServer(msg ServerMessage) ([]byte, error) {
	e := newEncoder()
	e.u32(uint32(msg.serverTag()))

	switch m := msg.(type) {
	case ServerWelcome:
		e.u8(m.ProtocolVersion)
		e.str(m.PeerID)
		e.str(m.Color)
		e.str(m.SessionToken)
		e.i64(m.ServerTime)
	case ServerError:
		e.u16(uint16(m.Code))
		e.str(m.Message)
		e.optStr(m.ProjectID)
	case ServerGoodbye:
		e.optStr(m.Reason)
	case ServerProjectJoined:
		e.str(m.ProjectID)
		e.u32(uint32(len(m.Peers)))
		for _, p := range m.Peers {
			writePeerInfo(e, p)
		}
		e.optBool(m.DocumentState != nil, func() { e.bytesField(m.DocumentState) })
	case ServerPeerJoined:
		e.str(m.ProjectID)
		writePeerInfo(e, m.Peer)
	case ServerProjectLeft:
		e.str(m.ProjectID)
	case ServerPeerLeft:
		e.str(m.ProjectID)
		e.str(m.PeerID)
		e.optStr(m.Reason)
	case ServerSyncMessage:
		e.str(m.ProjectID)
		e.bytesField(m.SyncData)
		e.optStr(m.FromPeer)
	case ServerSyncComplete:
		e.str(m.ProjectID)
	case ServerFileContent:
		e.str(m.ProjectID)
		e.str(m.FilePath)
		e.str(m.Content)
		e.str(m.Language)
		e.u64(m.Version)
	case ServerFileNotFound:
		e.str(m.ProjectID)
		e.str(m.FilePath)
	case ServerCursorBroadcast:
		e.str(m.ProjectID)
		e.str(m.PeerID)
		e.str(m.PeerName)
		e.str(m.PeerColor)
		e.str(m.FilePath)
		e.u32(m.Line)
		e.u32(m.Column)
		writeOptPosition(e, m.SelectionEnd)
	case ServerPresenceBroadcast:
		e.str(m.ProjectID)
		e.str(m.PeerID)
		e.str(m.PeerName)
		e.u8(uint8(m.Status))
		e.optStr(m.ActiveFile)
		e.i64(m.LastActive)
	case ServerChatBroadcast:
		e.str(m.ProjectID)
		e.str(m.PeerID)
		e.str(m.PeerName)
		e.str(m.Content)
		e.i64(m.Timestamp)
	case ServerChatHistory:
		e.str(m.ProjectID)
		e.u32(uint32(len(m.Messages)))
		for _, item := range m.Messages {
			e.str(item.PeerID)
			e.str(item.PeerName)
			e.str(item.Content)
			e.i64(item.Timestamp)
		}
	case ServerVoiceToken:
		e.str(m.ProjectID)
		e.str(m.Token)
		e.str(m.RoomName)
		e.str(m.ServerURL)
	case ServerPong:
		e.u64(m.Timestamp)
		e.i64(m.ServerTime)
	case ServerStats:
		e.u32(m.ActiveProjects)
		e.u32(m.ActivePeers)
		e.u64(m.UptimeSeconds)
	default:
		return nil, errors.Errorf("wire: unencodable server message %T", msg)
	}

	return e.Bytes(), nil
}

// DecodeServer parses a ServerMessage payload. Unknown tags fail ErrInvalidMessage.
func DecodeServer(payload []byte) (ServerMessage, error) {
	d := newDecoder(payload)
	tag32, err := d.u32()
	if err != nil {
		return nil, err
	}
	if tag32 > 0xff {
		return nil, errors.Wrapf(ErrInvalidMessage, "tag %d out of range", tag32)
	}
	tag := uint8(tag32)

	var msg ServerMessage
	switch tag {
	case TagWelcome:
		var m ServerWelcome
		if m.ProtocolVersion, err = d.u8(); err != nil {
			return nil, err
		}
		if m.PeerID, err = d.str(); err != nil {
			return nil, err
		}
		if m.Color, err = d.str(); err != nil {
			return nil, err
		}
		if m.SessionToken, err = d.str(); err != nil {
			return nil, err
		}
		if m.ServerTime, err = d.i64(); err != nil {
			return nil, err
		}
		msg = m
	case TagError:
		var m ServerError
		code, err2 := d.u16()
		if err2 != nil {
			return nil, err2
		}
		m.Code = ErrorCode(code)
		if m.Message, err = d.str(); err != nil {
			return nil, err
		}
		if m.ProjectID, err = d.optStr(); err != nil {
			return nil, err
		}
		msg = m
	case TagSvrGoodbye:
		var m ServerGoodbye
		if m.Reason, err = d.optStr(); err != nil {
			return nil, err
		}
		msg = m
	case TagProjectJoined:
		var m ServerProjectJoined
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		count, err2 := d.u32()
		if err2 != nil {
			return nil, err2
		}
		m.Peers = make([]PeerInfo, 0, count)
		for i := uint32(0); i < count; i++ {
			p, err3 := readPeerInfo(d)
			if err3 != nil {
				return nil, err3
			}
			m.Peers = append(m.Peers, p)
		}
		present, err2 := d.boolean()
		if err2 != nil {
			return nil, err2
		}
		if present {
			if m.DocumentState, err = d.bytesField(); err != nil {
				return nil, err
			}
		}
		msg = m
	case TagPeerJoined:
		var m ServerPeerJoined
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		if m.Peer, err = readPeerInfo(d); err != nil {
			return nil, err
		}
		msg = m
	case TagProjectLeft:
		var m ServerProjectLeft
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		msg = m
	case TagPeerLeft:
		var m ServerPeerLeft
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		if m.PeerID, err = d.str(); err != nil {
			return nil, err
		}
		if m.Reason, err = d.optStr(); err != nil {
			return nil, err
		}
		msg = m
	case TagSvrSyncMessage:
		var m ServerSyncMessage
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		if m.SyncData, err = d.bytesField(); err != nil {
			return nil, err
		}
		if m.FromPeer, err = d.optStr(); err != nil {
			return nil, err
		}
		msg = m
	case TagSyncComplete:
		var m ServerSyncComplete
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		msg = m
	case TagFileContent:
		var m ServerFileContent
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		if m.FilePath, err = d.str(); err != nil {
			return nil, err
		}
		if m.Content, err = d.str(); err != nil {
			return nil, err
		}
		if m.Language, err = d.str(); err != nil {
			return nil, err
		}
		if m.Version, err = d.u64(); err != nil {
			return nil, err
		}
		msg = m
	case TagFileNotFound:
		var m ServerFileNotFound
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		if m.FilePath, err = d.str(); err != nil {
			return nil, err
		}
		msg = m
	case TagCursorBroadcast:
		var m ServerCursorBroadcast
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		if m.PeerID, err = d.str(); err != nil {
			return nil, err
		}
		if m.PeerName, err = d.str(); err != nil {
			return nil, err
		}
		if m.PeerColor, err = d.str(); err != nil {
			return nil, err
		}
		if m.FilePath, err = d.str(); err != nil {
			return nil, err
		}
		if m.Line, err = d.u32(); err != nil {
			return nil, err
		}
		if m.Column, err = d.u32(); err != nil {
			return nil, err
		}
		if m.SelectionEnd, err = readOptPosition(d); err != nil {
			return nil, err
		}
		msg = m
	case TagPresenceBroadcast:
		var m ServerPresenceBroadcast
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		if m.PeerID, err = d.str(); err != nil {
			return nil, err
		}
		if m.PeerName, err = d.str(); err != nil {
			return nil, err
		}
		status, err2 := d.u8()
		if err2 != nil {
			return nil, err2
		}
		m.Status = PresenceStatus(status)
		if m.ActiveFile, err = d.optStr(); err != nil {
			return nil, err
		}
		if m.LastActive, err = d.i64(); err != nil {
			return nil, err
		}
		msg = m
	case TagChatBroadcast:
		var m ServerChatBroadcast
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		if m.PeerID, err = d.str(); err != nil {
			return nil, err
		}
		if m.PeerName, err = d.str(); err != nil {
			return nil, err
		}
		if m.Content, err = d.str(); err != nil {
			return nil, err
		}
		if m.Timestamp, err = d.i64(); err != nil {
			return nil, err
		}
		msg = m
	case TagChatHistory:
		var m ServerChatHistory
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		count, err2 := d.u32()
		if err2 != nil {
			return nil, err2
		}
		m.Messages = make([]ChatHistoryItem, 0, count)
		for i := uint32(0); i < count; i++ {
			var item ChatHistoryItem
			if item.PeerID, err = d.str(); err != nil {
				return nil, err
			}
			if item.PeerName, err = d.str(); err != nil {
				return nil, err
			}
			if item.Content, err = d.str(); err != nil {
				return nil, err
			}
			if item.Timestamp, err = d.i64(); err != nil {
				return nil, err
			}
			m.Messages = append(m.Messages, item)
		}
		msg = m
	case TagVoiceToken:
		var m ServerVoiceToken
		if m.ProjectID, err = d.str(); err != nil {
			return nil, err
		}
		if m.Token, err = d.str(); err != nil {
			return nil, err
		}
		if m.RoomName, err = d.str(); err != nil {
			return nil, err
		}
		if m.ServerURL, err = d.str(); err != nil {
			return nil, err
		}
		msg = m
	case TagPong:
		var m ServerPong
		if m.Timestamp, err = d.u64(); err != nil {
			return nil, err
		}
		if m.ServerTime, err = d.i64(); err != nil {
			return nil, err
		}
		msg = m
	case TagStats:
		var m ServerStats
		if m.ActiveProjects, err = d.u32(); err != nil {
			return nil, err
		}
		if m.ActivePeers, err = d.u32(); err != nil {
			return nil, err
		}
		if m.UptimeSeconds, err = d.u64(); err != nil {
			return nil, err
		}
		msg = m
	default:
		return nil, errors.Wrapf(ErrInvalidMessage, "unknown server tag %d", tag)
	}

	if err := d.done(); err != nil {
		return nil, err
	}
	return msg, nil
}
