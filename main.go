package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"golang.org/x/exp/rand"

	"charlm/IO"
	"charlm/model"
	"charlm/params"
)

const (
	corpusPath = "data/corpus.txt"
	resultsDir = "results"
)

var (
	trainFlag   bool
	predictFlag bool
	plotFlag    bool
)

func init() {
	flag.BoolVar(&trainFlag, "train", false, "Train the model and write artifacts to results/")
	flag.BoolVar(&predictFlag, "predict", false, "Sample text from the trained model")
	flag.BoolVar(&plotFlag, "plot", false, "Render loss/accuracy curves from results/train.csv")
}

func main() {
	flag.Parse()

	switch {
	case trainFlag:
		if err := runTraining(corpusPath, resultsDir, params.Config); err != nil {
			log.Fatal(err)
		}
	case predictFlag:
		p, err := NewPredictor(resultsDir)
		if err != nil {
			log.Fatal(err)
		}
		rng := rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
		text, err := p.Predict("\n", 100, 0.5, rng)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(text)
	case plotFlag:
		if err := renderCurves(resultsDir); err != nil {
			log.Fatal(err)
		}
	default:
		fmt.Println("No flag passed. Use -train, -predict, or -plot.")
	}
}

// runTraining wires the whole object graph for one run: corpus split,
// vocabulary, datasets, model, trainer. Randomness flows from a single
// seeded source so a run is reproducible from its config alone.
func runTraining(corpusPath, resultsDir string, cfg params.TrainingConfig) error {
	rng := rand.New(rand.NewSource(cfg.Seed))

	text, err := IO.LoadCorpus(corpusPath)
	if err != nil {
		return err
	}
	trainSplit, valSplit := IO.SplitCorpus(text, cfg.TrainFrac)
	vocab := IO.BuildVocabulary(trainSplit)

	trainDS, err := IO.NewDataset(trainSplit, vocab, cfg.WindowLen)
	if err != nil {
		return err
	}
	valDS, err := IO.NewDataset(valSplit, vocab, cfg.WindowLen)
	if err != nil {
		return err
	}
	fmt.Printf("train examples: %d  val examples: %d\n", trainDS.Len(), valDS.Len())

	m := model.NewLstmLM(vocab.Size(), cfg.EmbeddingDim, cfg.HiddenSize)
	m.InitWeights(rng)

	trainer := NewTrainer(cfg, vocab,
		IO.NewLoader(trainDS, cfg.BatchSize, rng),
		IO.NewLoader(valDS, cfg.BatchSize*2, rng),
		m, resultsDir)
	return trainer.Train(cfg.NumEpochs)
}
