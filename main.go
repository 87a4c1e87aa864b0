// main.go - In-process walkthrough of the commitment lifecycle and proof orchestration
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"privacypool/internal/commitment"
	"privacypool/internal/gnarkprover"
	"privacypool/internal/operation"
	"privacypool/internal/proof"
	"privacypool/internal/session"
	"privacypool/internal/storage"
	"privacypool/internal/wallet"
	"privacypool/internal/witness"
	"privacypool/p2p"
)

// demo runs a controller and a prover node in one process.
type demo struct {
	Session *session.Session
	Wallet  *wallet.Wallet
	Proofs  *proof.Controller
	Circuit proof.Circuit

	node *p2p.Node
	kv   storage.KV
}

func newDemo(ctx context.Context, dir string, cfg proof.Config, log zerolog.Logger) (*demo, error) {
	backend := gnarkprover.NewBackend(filepath.Join(dir, "keys"), log)
	runtime := proof.NewRuntime(backend.Setup)
	if err := runtime.Ensure(ctx); err != nil {
		return nil, fmt.Errorf("prover setup: %w", err)
	}
	artDir := filepath.Join(dir, "artifacts")
	arts, err := backend.ExportArtifacts(artDir)
	if err != nil {
		return nil, fmt.Errorf("export artifacts: %w", err)
	}

	engine := commitment.NewEngine(commitment.Poseidon{})
	node := p2p.NewNode("prover", "127.0.0.1:0", log)
	proof.NewProver("prover", backend, gnarkprover.Encoder{}, proof.NewHTTPArtifacts(time.Minute, artDir),
		runtime, witness.NewAssembler(engine.Hasher()), log).Register(node)
	ready := make(chan struct{})
	errCh := make(chan error, 1)
	go func() { errCh <- node.StartServer(ready) }()
	select {
	case <-ready:
	case err := <-errCh:
		return nil, fmt.Errorf("start prover: %w", err)
	}

	kv, err := storage.OpenLevelDB(filepath.Join(dir, "operations"))
	if err != nil {
		node.Shutdown(ctx)
		return nil, err
	}
	sess := session.New()
	w := wallet.New(sess, operation.NewStore(kv, log), engine, log)
	dialer := p2p.NewDialer("controller", p2p.ChannelURL(node.Addr()), 100*time.Millisecond, 10, log)
	ctrl := proof.NewController(w, dialer, cfg, log)
	sess.OnLock(ctrl.Reset)

	return &demo{
		Session: sess,
		Wallet:  w,
		Proofs:  ctrl,
		Circuit: proof.Circuit{JSONURL: "file://" + arts.ProgramPath, VKURL: "file://" + arts.VKPath},
		node:    node,
		kv:      kv,
	}, nil
}

// Prove stages a proof spending the given confirmed deposits, approves it and
// waits for the result.
func (d *demo) Prove(ctx context.Context, deposits ...uint64) ([]string, error) {
	ids := make([]any, len(deposits))
	for i, idx := range deposits {
		ids[i] = idx
	}
	req, ch, err := d.Proofs.Stage(proof.Ask{
		Circuit: d.Circuit,
		Witness: witness.Skeleton{witness.DepositsField: ids},
	})
	if err != nil {
		return nil, err
	}
	if _, err := d.Proofs.Approve(ctx, req.ID); err != nil {
		return nil, err
	}
	select {
	case res, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("proof request %s closed", req.ID)
		}
		return res.Calldata, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *demo) Close() {
	d.Proofs.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.node.Shutdown(ctx)
	d.kv.Close()
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dir, err := os.MkdirTemp("", "privacypool-demo")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	fmt.Println("=== Privacy Pool Walkthrough ===")

	fmt.Println("\n1. Setting up prover keys and starting the proof channel...")
	start := time.Now()
	d, err := newDemo(ctx, dir, proof.DefaultConfig(), log)
	if err != nil {
		panic(err)
	}
	defer d.Close()
	fmt.Printf("Prover ready in %v\n", time.Since(start))

	fmt.Println("\n2. Unlocking seed 0x1...")
	if err := d.Session.Unlock("0x1"); err != nil {
		panic(err)
	}

	fmt.Println("\n3. Deriving the first deposit commitment...")
	op, err := d.Wallet.Generate(operation.Metadata{"amount": "1", "tokenAddress": "0x0"})
	if err != nil {
		panic(err)
	}
	hashHex, _ := commitment.DecimalToHex(op.Hash)
	fmt.Printf("Operation %s at index %d\n  hash: %s\n", op.ID, op.Index, hashHex)

	fmt.Println("\n4. Proving before the deposit is confirmed...")
	if _, err := d.Prove(ctx, op.Index); err != nil {
		fmt.Printf("Rejected as expected: %v\n", err)
	}

	fmt.Println("\n5. Confirming the deposit...")
	if _, err := d.Wallet.Confirm(op.ID); err != nil {
		panic(err)
	}

	fmt.Println("\n6. Staging, approving and proving ownership...")
	start = time.Now()
	calldata, err := d.Prove(ctx, op.Index)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Proof delivered in %v (%d calldata words)\n", time.Since(start), len(calldata)-1)
	for i, word := range calldata {
		fmt.Printf("  [%2d] %s\n", i, word)
	}

	fmt.Println("\n7. Locking the session...")
	d.Session.Lock()
	if _, err := d.Wallet.Pending(); err != nil {
		fmt.Printf("Pools sealed: %v\n", err)
	}
	fmt.Println("\nWalkthrough completed successfully")
}
