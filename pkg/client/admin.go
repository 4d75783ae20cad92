package client

import (
	"net"
	"time"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/codec"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/protocol"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

// DefaultAdminSocketPath is the well-known admin endpoint
const DefaultAdminSocketPath = "/run/gatekeepr/gatekeepr-admin.socket"

// Admin is the synchronous administration library used by privileged tooling
// to mutate and inspect the policy database
type Admin struct {
	socketPath string
	conn       net.Conn
	inbound    *codec.BinaryQueue
	seq        uint16
}

// NewAdmin creates an admin client for the given socket path; an empty path
// selects the well-known admin endpoint
func NewAdmin(socketPath string) *Admin {
	if socketPath == "" {
		socketPath = DefaultAdminSocketPath
	}
	return &Admin{
		socketPath: socketPath,
		inbound:    codec.NewBinaryQueue(),
	}
}

// InsertOrUpdateBucket creates a bucket or replaces its default result
func (a *Admin) InsertOrUpdateBucket(bucketID string, def types.PolicyResult) error {
	reply, err := a.request(protocol.NewInsertOrUpdateBucketRequest(a.nextSeq(), bucketID, def))
	if err != nil {
		return err
	}
	return codeToError(reply)
}

// RemoveBucket deletes a bucket
func (a *Admin) RemoveBucket(bucketID string, recursive bool) error {
	reply, err := a.request(protocol.NewRemoveBucketRequest(a.nextSeq(), bucketID, recursive))
	if err != nil {
		return err
	}
	return codeToError(reply)
}

// SetPolicies applies a batch of policy insertions and removals
func (a *Admin) SetPolicies(insert []protocol.BucketedPolicy, remove []protocol.BucketedKey) error {
	reply, err := a.request(protocol.NewSetPoliciesRequest(a.nextSeq(), insert, remove))
	if err != nil {
		return err
	}
	return codeToError(reply)
}

// Erase removes every policy matching filter from startBucket, following
// redirects when recursive is set
func (a *Admin) Erase(startBucket string, recursive bool, filter types.PolicyKey) error {
	reply, err := a.request(protocol.NewEraseRequest(a.nextSeq(), startBucket, recursive, filter))
	if err != nil {
		return err
	}
	return codeToError(reply)
}

// Check evaluates key from startBucket without touching client caches
func (a *Admin) Check(startBucket string, recursive bool, key types.PolicyKey) (types.PolicyResult, error) {
	reply, err := a.request(protocol.NewAdminCheckRequest(a.nextSeq(), startBucket, recursive, key))
	if err != nil {
		return types.PolicyResult{}, err
	}
	resp, ok := reply.(*protocol.AdminCheckResponse)
	if !ok {
		return types.PolicyResult{}, errors.New(errors.ErrInternal, "unexpected admin check reply")
	}
	if resp.DbCorrupted {
		return types.PolicyResult{}, errors.New(errors.ErrDatabaseCorrupted, "database is corrupted")
	}
	if !resp.BucketValid {
		return types.PolicyResult{}, errors.New(errors.ErrBucketNotFound, "bucket does not exist").
			WithField("bucket", startBucket)
	}
	return resp.Result, nil
}

// ListPolicies lists the policies of one bucket matching filter
func (a *Admin) ListPolicies(bucket string, filter types.PolicyKey) ([]types.Policy, error) {
	reply, err := a.request(protocol.NewListRequest(a.nextSeq(), bucket, filter))
	if err != nil {
		return nil, err
	}
	resp, ok := reply.(*protocol.ListResponse)
	if !ok {
		return nil, errors.New(errors.ErrInternal, "unexpected list reply")
	}
	if resp.DbCorrupted {
		return nil, errors.New(errors.ErrDatabaseCorrupted, "database is corrupted")
	}
	if !resp.BucketValid {
		return nil, errors.New(errors.ErrBucketNotFound, "bucket does not exist").
			WithField("bucket", bucket)
	}
	return resp.Policies, nil
}

// ListDescriptions returns the policy types the daemon supports
func (a *Admin) ListDescriptions() ([]protocol.PolicyDescription, error) {
	reply, err := a.request(protocol.NewDescriptionListRequest(a.nextSeq()))
	if err != nil {
		return nil, err
	}
	resp, ok := reply.(*protocol.DescriptionListResponse)
	if !ok {
		return nil, errors.New(errors.ErrInternal, "unexpected description list reply")
	}
	return resp.Descriptions, nil
}

// GetMonitorEntries drains up to max buffered monitor entries
func (a *Admin) GetMonitorEntries(max int) ([]types.MonitorEntry, error) {
	reply, err := a.request(protocol.NewMonitorGetEntriesRequest(a.nextSeq(), uint32(max)))
	if err != nil {
		return nil, err
	}
	resp, ok := reply.(*protocol.MonitorGetEntriesResponse)
	if !ok {
		return nil, errors.New(errors.ErrInternal, "unexpected monitor entries reply")
	}
	return resp.Entries, nil
}

// Close drops the connection
func (a *Admin) Close() {
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
	a.inbound.Clear()
}

// codeToError maps a CodeResponse to an error, nil on OK
func codeToError(reply protocol.Message) error {
	resp, ok := reply.(*protocol.CodeResponse)
	if !ok {
		return errors.New(errors.ErrInternal, "unexpected mutation reply")
	}
	switch resp.Code {
	case protocol.CodeOK:
		return nil
	case protocol.CodeNoBucket:
		return errors.New(errors.ErrBucketNotFound, "bucket does not exist")
	case protocol.CodeNoPolicyType:
		return errors.New(errors.ErrUnknownPolicyType, "policy type not recognized")
	case protocol.CodeNotAllowed:
		return errors.New(errors.ErrDefaultBucketDelete, "operation not allowed")
	case protocol.CodeDbCorrupted:
		return errors.New(errors.ErrDatabaseCorrupted, "database is corrupted and read-only")
	default:
		return errors.New(errors.ErrInternal, "operation failed")
	}
}

func (a *Admin) nextSeq() uint16 {
	a.seq++
	return a.seq
}

func (a *Admin) request(msg protocol.Message) (protocol.Message, error) {
	if err := a.ensureConnected(); err != nil {
		return nil, err
	}

	q := codec.NewBinaryQueue()
	codec.SerializeFrame(protocol.Encode(msg), q)
	wire, err := q.Consume(q.Size())
	if err != nil {
		return nil, err
	}
	if _, err := a.conn.Write(wire); err != nil {
		a.Close()
		return nil, errors.Wrap(errors.ErrPeerDisconnected, "write failed", err)
	}

	buf := make([]byte, 4096)
	for {
		frame, err := codec.DeserializeFrame(a.inbound)
		if err != nil {
			a.Close()
			return nil, err
		}
		if frame != nil {
			reply, err := protocol.Decode(frame)
			if err != nil {
				a.Close()
				return nil, err
			}
			if reply.Seq() == msg.Seq() {
				return reply, nil
			}
			continue
		}

		n, err := a.conn.Read(buf)
		if err != nil {
			a.Close()
			return nil, errors.Wrap(errors.ErrPeerDisconnected, "read failed", err)
		}
		a.inbound.Append(buf[:n])
	}
}

func (a *Admin) ensureConnected() error {
	if a.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("unix", a.socketPath, 2*time.Second)
	if err != nil {
		return errors.Wrap(errors.ErrPeerDisconnected, "cannot connect to admin socket", err).
			WithField("socket", a.socketPath)
	}
	a.conn = conn
	a.inbound.Clear()
	return nil
}
