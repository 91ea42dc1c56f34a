package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/codec"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/data"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/model"
	"google.golang.org/grpc"
)

func main() {
	addr := flag.String("addr", "localhost:50051", "listen address")
	weights := flag.String("weights", "", "linear classifier JSON weight file")
	fitDir := flag.String("fit", "", "train a linear classifier on this image folder and write it to --weights")
	epochs := flag.Int("fit-epochs", 5, "passes over the fit folder")
	lr := flag.Float64("fit-lr", 0.01, "fit learning rate")
	imageSize := flag.Int("image-size", 32, "height / width of the input image")
	batchSize := flag.Int("batch-size", 128, "fit batch size")
	flag.Parse()

	if *weights == "" {
		fmt.Fprintln(os.Stderr, "Usage: classifier-server --weights <file.json> [--fit <dir>] [--addr host:port]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *fitDir != "" {
		if err := fit(ctx, *fitDir, *weights, *imageSize, *batchSize, model.FitOptions{Epochs: *epochs, LR: *lr}); err != nil {
			log.Fatalf("fit: %v", err)
		}
	}

	clf, err := model.LoadLinearClassifier(*weights)
	if err != nil {
		log.Fatalf("%v", err)
	}

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("listen %s: %v", *addr, err)
	}
	srv := grpc.NewServer()
	codec.RegisterClassifierService(srv, clf)

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()
	log.Printf("classifier (%d classes) serving on %s", clf.Classes(), lis.Addr())
	if err := srv.Serve(lis); err != nil {
		log.Fatalf("serve: %v", err)
	}
}

func fit(ctx context.Context, dir, out string, size, batchSize int, opts model.FitOptions) error {
	norm := data.CIFAR10
	folder, err := data.LoadFolder(dir, size, norm, batchSize, nil)
	if err != nil {
		return err
	}
	features := norm.Channels() * size * size
	clf, acc, err := model.FitLinearClassifier(ctx, folder.Stream, len(folder.Classes), features, opts)
	if err != nil {
		return err
	}
	log.Printf("fitted %d classes on %d samples: accuracy %.4f", len(folder.Classes), folder.Stream.Samples(), acc)
	return clf.Save(out)
}
