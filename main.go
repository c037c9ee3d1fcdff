package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gocv.io/x/gocv"
	"gopkg.in/yaml.v3"

	"github.com/google/uuid"

	"SortyxServer/adhoc"
	"SortyxServer/classify"
	"SortyxServer/engine"
	iface "SortyxServer/interface"
	"SortyxServer/logger"
	"SortyxServer/monitor"
	"SortyxServer/notify"
	"SortyxServer/pipeline"
	"SortyxServer/receipt"
)

type configStruct struct {
	HTTPPort          int      `yaml:"HTTPPort"`
	MonitorPort       int      `yaml:"MonitorPort"`
	WorkersNum        int      `yaml:"workersNum"`
	PoseModelPath     string   `yaml:"poseModelPath"`
	DetectModelPath   string   `yaml:"detectModelPath"`
	ClassifyModelPath string   `yaml:"classifyModelPath"`
	ClassifyNamesFile string   `yaml:"classifyNamesFile"`
	GeminiModels      []string `yaml:"geminiModels"`
	UseRegServer      bool     `yaml:"UseRegServer"`
	RegServerHost     string   `yaml:"RegServerHost"`
	RegServerPort     int      `yaml:"RegServerPort"`
	KioskClass        string   `yaml:"kioskClass"`
}

// App bundles the long-lived pipeline components behind the HTTP handlers.
type App struct {
	hand     *pipeline.HandWristDetector
	resolver *pipeline.ObjectInHandResolver
	arbiter  *classify.Arbiter
	stats    *monitor.Stats
	hub      *notify.Hub

	poseLoaded     bool
	detectLoaded   bool
	classifyLoaded bool
	geminiSet      bool
}

func GetOutboundIP() (string, error) {
	// No packet is sent; dialing UDP only resolves the local egress address.
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)

	return localAddr.IP.String(), nil
}

// Base64ToMat converts a base64 string, optionally with a data:image/...
// prefix, into a gocv.Mat.
func Base64ToMat(b64 string) (gocv.Mat, error) {
	if i := strings.Index(b64, ","); i != -1 && strings.HasPrefix(b64, "data:") {
		b64 = b64[i+1:]
	}

	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return gocv.NewMat(), err
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), err
	}
	if mat.Empty() {
		// IMDecode returns an empty Mat when decoding fails.
		err := mat.Close()
		if err != nil {
			return gocv.Mat{}, err
		}
		return gocv.NewMat(), errors.New("decoded image is empty or unsupported format")
	}
	return mat, nil
}

type imageRequest struct {
	Image string `json:"image_base64"`
}

type classifyRequest struct {
	Image  string `json:"image_base64"`
	Method string `json:"classification_method"`
}

// detectResponse merges the hand/wrist verdict with the object-in-hand
// resolution into the flat shape kiosk clients consume.
type detectResponse struct {
	pipeline.HandDetectionResult
	pipeline.ObjectInHandResult
}

func (app *App) handleDetect(c *gin.Context) {
	monitor.DetectTotal.Inc()
	var req imageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Image == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing image data"})
		return
	}

	mat, err := Base64ToMat(req.Image)
	if err != nil {
		c.JSON(http.StatusBadRequest, detectResponse{
			HandDetectionResult: pipeline.HandDetectionResult{
				Message: fmt.Sprintf("invalid image: %v", err),
				Method:  pipeline.MethodNone,
			},
			ObjectInHandResult: pipeline.ObjectInHandResult{
				DetectedObjects: []iface.DetectedObject{},
			},
		})
		return
	}
	defer mat.Close()

	resp, ok := Submit(func() interface{} {
		hand := app.hand.Detect(mat)
		out := detectResponse{HandDetectionResult: hand}
		out.DetectedObjects = []iface.DetectedObject{}
		if hand.HandDetected && hand.HandBBox != nil {
			out.ObjectInHandResult = app.resolver.Resolve(mat, *hand.HandBBox)
			if out.ObjectInHand && out.ObjectBBox != nil {
				out.Message = "Hand, wrist, and object detected"
				out.Confidence = out.ObjectBBox.Conf
			} else {
				out.Message = "Hand/wrist detected, waiting for object"
			}
		}
		return out
	}).(detectResponse)
	if !ok {
		// The job panicked; the client still gets a well-formed verdict.
		c.JSON(http.StatusOK, detectResponse{
			HandDetectionResult: pipeline.HandDetectionResult{
				Message: "Detection failed",
				Method:  pipeline.MethodNone,
			},
			ObjectInHandResult: pipeline.ObjectInHandResult{
				DetectedObjects: []iface.DetectedObject{},
			},
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (app *App) handleClassify(c *gin.Context) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Log().Sugar().Errorf("classify panicked: %v", r)
			app.respondVerdict(c, classify.FallbackVerdict(), start)
		}
	}()

	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Image == "" {
		app.respondVerdict(c, classify.FallbackVerdict(), start)
		return
	}

	if req.Method == "" {
		req.Method = "model"
	}

	mat, err := Base64ToMat(req.Image)
	if err != nil {
		logger.Log().Sugar().Warnf("classify got undecodable image: %v", err)
		app.respondVerdict(c, classify.FallbackVerdict(), start)
		return
	}
	defer mat.Close()

	verdict, ok := Submit(func() interface{} {
		return app.arbiter.Classify(c.Request.Context(), mat, req.Method)
	}).(classify.Verdict)
	if !ok {
		verdict = classify.FallbackVerdict()
	}

	app.respondVerdict(c, verdict, start)
}

// respondVerdict finishes a classification request: counters, receipt token,
// websocket event, HTTP body. Always 200, the fallback verdict is a valid
// answer, not an error.
func (app *App) respondVerdict(c *gin.Context, v classify.Verdict, start time.Time) {
	app.stats.RecordVerdict(string(v.Classification), v.Method)

	token, err := receipt.Encode(v)
	if err != nil {
		logger.Log().Sugar().Errorf("receipt encode failed: %v", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	app.hub.Broadcast(gin.H{
		"type":      "classification_complete",
		"data":      v,
		"timestamp": now,
	})

	c.JSON(http.StatusOK, gin.H{
		"classification":  v.Classification,
		"confidence":      v.Confidence,
		"item_name":       v.ItemName,
		"bin_color":       v.BinColor,
		"disposal_code":   v.DisposalCode,
		"explanation":     v.Explanation,
		"method":          v.Method,
		"qr_code":         token,
		"processing_time": time.Since(start).Seconds(),
		"timestamp":       now,
	})
}

func (app *App) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"models_loaded": gin.H{
			"pose":     app.poseLoaded,
			"detect":   app.detectLoaded,
			"classify": app.classifyLoaded,
		},
		"gemini_configured": app.geminiSet,
		"ws_clients":        app.hub.Count(),
	})
}

func (app *App) handleStats(c *gin.Context) {
	snap := app.stats.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"total_classifications": snap.Total,
		"category_breakdown": gin.H{
			string(classify.Recyclable):    snap.Recyclable,
			string(classify.NonRecyclable): snap.NonRecyclable,
		},
		"model_classifications":    snap.Model,
		"llm_classifications":      snap.LLM,
		"fallback_classifications": snap.Fallback,
		"timestamp":                time.Now().UTC().Format(time.RFC3339),
	})
}

// handleBinsStatus reports static fill levels; no sensor feed is wired yet.
func (app *App) handleBinsStatus(c *gin.Context) {
	now := time.Now().UTC().Format(time.RFC3339)
	bins := []gin.H{
		{"bin_id": "recyclable_bin", "level": 45, "status": "normal", "last_updated": now},
		{"bin_id": "non_recyclable_bin", "level": 68, "status": "warning", "last_updated": now},
	}
	c.JSON(http.StatusOK, gin.H{"bins": bins, "timestamp": now})
}

func (app *App) routes(r *gin.Engine) {
	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/health", app.handleHealth)
	r.POST("/api/detect-hand-wrist", app.handleDetect)
	r.POST("/api/detect-hand", app.handleDetect)
	r.POST("/api/classify", app.handleClassify)
	r.GET("/api/stats", app.handleStats)
	r.GET("/api/bins/status", app.handleBinsStatus)
	r.GET("/ws", func(c *gin.Context) {
		app.hub.Attach(c.Writer, c.Request)
	})
	r.POST("/api/models/upload", func(c *gin.Context) {
		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "File upload failed: " + err.Error()})
			return
		}

		modelPath := fmt.Sprintf("./models/%s", file.Filename)
		err = c.SaveUploadedFile(file, modelPath)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": modelPath})
	})
}

func main() {
	var wg sync.WaitGroup
	err := logger.InitProduction()
	if err != nil {
		return
	}
	defer logger.Sync()

	fmt.Println(strings.Repeat("#", 64))
	CPUNum := runtime.NumCPU()
	runtime.GOMAXPROCS(CPUNum)
	fmt.Printf("CPU Cores: %d\n", CPUNum)
	configData, err := os.ReadFile("config.yaml")
	if err != nil {
		fmt.Println("Failed to read config file:", err)
		return
	}
	config := configStruct{}
	err = yaml.Unmarshal(configData, &config)
	if err != nil {
		fmt.Println("Failed to parse config file:", err)
		return
	}
	fmt.Println(" HTTP    Port:", config.HTTPPort)
	fmt.Println(" Monitor Port:", config.MonitorPort)
	fmt.Println("Configured Workers Num:", config.WorkersNum)
	fmt.Println(strings.Repeat("#", 64))
	if config.WorkersNum <= 0 {
		config.WorkersNum = 1
		fmt.Println("Invalid workersNum in config, defaulting to 1")
	} else if config.WorkersNum > CPUNum {
		fmt.Println("workersNum exceeds CPU cores, which may degrade throughput")
	}

	poseEngine := engine.NewPoseEngine()
	if err := poseEngine.LoadModel(config.PoseModelPath); err != nil {
		logger.Log().Sugar().Warnf("pose model not loaded: %v", err)
	}
	detectEngine := engine.NewObjectEngine()
	if err := detectEngine.LoadModel(config.DetectModelPath, nil); err != nil {
		logger.Log().Sugar().Warnf("detection model not loaded: %v", err)
	}
	classifyEngine := engine.NewClassifyEngine()
	if err := classifyEngine.LoadModel(config.ClassifyModelPath, config.ClassifyNamesFile); err != nil {
		logger.Log().Sugar().Warnf("classification model not loaded: %v", err)
	}

	gemini := classify.NewGeminiClient(os.Getenv("GEMINI_API_KEY"))
	if !gemini.Configured() {
		logger.Log().Warn("GEMINI_API_KEY not set, cloud classification will use the safety fallback")
	}

	models := config.GeminiModels
	if len(models) == 0 {
		models = classify.DefaultCloudModels
	}

	app := &App{
		stats:          &monitor.Stats{},
		hub:            notify.NewHub(),
		poseLoaded:     poseEngine.Loaded(),
		detectLoaded:   detectEngine.Loaded(),
		classifyLoaded: classifyEngine.Loaded(),
		geminiSet:      gemini.Configured(),
	}

	// Engines that failed to load stay nil in the pipeline so every stage
	// degrades instead of crashing.
	var poseBackend *engine.PoseEngine
	if app.poseLoaded {
		poseBackend = poseEngine
	}
	var detectBackend *engine.ObjectEngine
	if app.detectLoaded {
		detectBackend = detectEngine
	}
	var clsBackend *engine.ClassifyEngine
	if app.classifyLoaded {
		clsBackend = classifyEngine
	}

	var cloud iface.CloudVisionClassifier
	if gemini.Configured() {
		cloud = gemini
	}
	app.hand = pipeline.NewHandWristDetector(backendOrNilPose(poseBackend), backendOrNilDetect(detectBackend))
	app.resolver = pipeline.NewObjectInHandResolver(backendOrNilDetect(detectBackend))
	app.arbiter = classify.NewArbiter(backendOrNilCls(clsBackend), cloud, models)

	StartWorker(config.WorkersNum)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go monitor.StartMon(config.MonitorPort, ctx)

	if config.UseRegServer {
		ip, err := GetOutboundIP()
		if err != nil {
			logger.Log().Sugar().Warnf("outbound IP lookup failed, skipping registration: %v", err)
		} else {
			adhoc.SetAddress(config.RegServerHost, config.RegServerPort)
			kioskClass := config.KioskClass
			if kioskClass == "" {
				kioskClass = adhoc.KioskClassSorting
			}
			wg.Add(1)
			go adhoc.SendAliveMessage(uuid.NewString(), ip, config.HTTPPort, kioskClass, ctx, &wg)
		}
	}

	r := gin.Default()
	app.routes(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.HTTPPort),
		Handler: r,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Sugar().Errorf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log().Sugar().Errorf("HTTP shutdown error: %v", err)
	}
	close(JobQueue)
	wg.Wait()
	fmt.Println("Safely exited")
}

// Typed nil engine pointers must become nil interfaces, otherwise the
// pipeline's nil checks would see a non-nil backend.
func backendOrNilPose(e *engine.PoseEngine) iface.PoseEstimator {
	if e == nil {
		return nil
	}
	return e
}

func backendOrNilDetect(e *engine.ObjectEngine) iface.ObjectDetector {
	if e == nil {
		return nil
	}
	return e
}

func backendOrNilCls(e *engine.ClassifyEngine) iface.LocalClassifier {
	if e == nil {
		return nil
	}
	return e
}
